package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Pick a display colour for each station.
 *
 * Description:	The user can give a colour for each callsign they talk to,
 *		in the settings file or in a separate colours file:
 *
 *			# colours.yaml
 *			N0CALL: yellow
 *			w1aw-5: "#ff8000"
 *
 *		JSON works too since it is a subset of YAML.
 *
 *		Colour names are whatever the terminal UI understands.
 *		Lookup ignores case.  Stations not listed are white.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DEFAULT_COLOR = "white"

// ColorMap maps upper case callsign text ("W1AW-5") to a colour name.
// It is not changed after start up.
type ColorMap map[string]string

// NewColorMap copies m, upper casing the keys.
func NewColorMap(m map[string]string) ColorMap {
	var cm = make(ColorMap, len(m))
	for k, v := range m {
		cm[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return cm
}

// Get returns the colour for a station, DEFAULT_COLOR if none.
func (cm ColorMap) Get(c Callsign) string {
	return cm.GetName(c.String())
}

func (cm ColorMap) GetName(name string) string {
	if cm == nil {
		return DEFAULT_COLOR
	}

	var color, ok = cm[strings.ToUpper(strings.TrimSpace(name))]
	if !ok || color == "" {
		return DEFAULT_COLOR
	}
	return color
}

// Merge returns a new map with entries of other replacing ours.
func (cm ColorMap) Merge(other ColorMap) ColorMap {
	var out = make(ColorMap, len(cm)+len(other))
	for k, v := range cm {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

/*-------------------------------------------------------------------
 *
 * Name:        LoadColorsFile
 *
 * Purpose:     Read callsign to colour mapping from a YAML or JSON file.
 *
 *--------------------------------------------------------------------*/

func LoadColorsFile(path string) (ColorMap, error) {
	var data, readErr = os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("colors file: %w", readErr)
	}

	var raw map[string]string

	var unmarshalErr = yaml.Unmarshal(data, &raw)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("colors file %s: %w", path, unmarshalErr)
	}

	return NewColorMap(raw), nil
}

/* end textcolor.go */
