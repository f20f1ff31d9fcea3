package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	chatfx "github.com/doismellburning/chatfx/src"
)

/*-------------------------------------------------------------------
 *
 * Name:        run_lines
 *
 * Purpose:     Plain line interface, for pipes and dumb terminals.
 *
 * Description:	Each input line is a message or command.  At end of
 *		input we wait for our messages to go out, then stop.
 *
 *--------------------------------------------------------------------*/

func run_lines(ctx context.Context, session *chatfx.Session, f *formatter, in io.Reader, out io.Writer) error {
	var runCtx, cancel = context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var say = func(s string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, s)
	}

	var runErr = make(chan error, 1)
	go func() {
		runErr <- session.Run(runCtx)
	}()

	var printed = make(chan struct{})
	go func() {
		defer close(printed)
		for e := range session.Events() {
			say(f.line(e))
		}
	}()

	var lines = make(chan string)
	go func() {
		defer close(lines)
		var scanner = bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
	}()

	var jobs []*chatfx.TransmitJob

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop

		case err := <-runErr:
			<-printed
			return err

		case line, ok := <-lines:
			if !ok {
				for _, job := range jobs {
					job.Wait(runCtx) //nolint:errcheck
				}
				break loop
			}

			var ui, err = parse_input(line)
			if err != nil {
				say("Error: " + err.Error())
				continue
			}

			switch ui.kind {
			case INPUT_NONE, INPUT_CLEAR:
			case INPUT_QUIT:
				break loop
			case INPUT_HELP:
				say(help_text)
			case INPUT_LOG:
				say(f.stats(session.Stats()))
			case INPUT_MESSAGE:
				var job, sendErr = session.Send(ui.dest, ui.text)
				if sendErr != nil {
					say("Error: " + sendErr.Error())
					continue
				}
				jobs = append(jobs, job)
			}
		}
	}

	cancel()
	var err = <-runErr
	<-printed

	return err
}
