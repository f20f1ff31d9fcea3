package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Find KISS over TCP TNCs on the local network using DNS-SD.
 *
 * Description:
 *
 *     Dire Wolf, Samoyed and others announce their KISS TCP port as
 *     service type _kiss-tnc._tcp.  Rather than making the user look up
 *     an IP address and port, we can browse for them.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package so no
 *     avahi daemon is needed.
 */

import (
	"context"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"
)

const DNS_SD_SERVICE = "_kiss-tnc._tcp"

const DNS_SD_DOMAIN = "local."

const DEFAULT_DISCOVER_TIMEOUT = 3 * time.Second

// DiscoveredTNC is one announced KISS TCP service.
type DiscoveredTNC struct {
	Name string /* e.g. "Dire Wolf on raspberrypi" */
	Host string /* IP address if one was announced, else host name. */
	Port int
}

func (d DiscoveredTNC) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Prefer IPv4, since "localhost:8001" style configuration usually means IPv4.
func dns_sd_entry_to_tnc(e dnssd.BrowseEntry) DiscoveredTNC {
	var host = strings.TrimSuffix(e.Host, ".")

	var ips = slices.Clone(e.IPs)
	slices.SortStableFunc(ips, func(a, b net.IP) int {
		var a4, b4 = a.To4() != nil, b.To4() != nil
		switch {
		case a4 && !b4:
			return -1
		case b4 && !a4:
			return 1
		default:
			return 0
		}
	})
	if len(ips) > 0 {
		host = ips[0].String()
	}

	return DiscoveredTNC{Name: e.Name, Host: host, Port: e.Port}
}

/*-------------------------------------------------------------------
 *
 * Name:        DiscoverTNC
 *
 * Purpose:     Browse for KISS TNCs for a while.
 *
 * Inputs:	ctx	- Browsing stops when this is done.
 *
 *		timeout	- Or after this long.  0 for DEFAULT_DISCOVER_TIMEOUT.
 *
 * Returns:	Services seen, sorted by name.  Possibly empty.
 *
 *--------------------------------------------------------------------*/

func DiscoverTNC(ctx context.Context, timeout time.Duration) ([]DiscoveredTNC, error) {
	if timeout <= 0 {
		timeout = DEFAULT_DISCOVER_TIMEOUT
	}

	var browseCtx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	var found = make(map[string]DiscoveredTNC)

	var add = func(e dnssd.BrowseEntry) {
		mu.Lock()
		defer mu.Unlock()
		found[e.Name] = dns_sd_entry_to_tnc(e)
	}

	var rmv = func(e dnssd.BrowseEntry) {
		mu.Lock()
		defer mu.Unlock()
		delete(found, e.Name)
	}

	var err = dnssd.LookupType(browseCtx, DNS_SD_SERVICE+"."+DNS_SD_DOMAIN, add, rmv)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()

	var out = make([]DiscoveredTNC, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b DiscoveredTNC) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out, nil
}

/* end dns_sd.go */
