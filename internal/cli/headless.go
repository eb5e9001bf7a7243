package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
)

const maxLineSize = 1 << 20

// HeadlessCLI handles JSON-based headless operation: one request per input
// line, one response or event per output line.
type HeadlessCLI struct {
	dispatcher *intent.Dispatcher
	eventBus   domain.EventBus
	scanner    *bufio.Scanner
	writer     io.Writer
	mu         sync.Mutex

	subsMu sync.Mutex
	subs   map[string]<-chan domain.Envelope
	wg     sync.WaitGroup
}

func NewHeadlessCLI(dispatcher *intent.Dispatcher, eventBus domain.EventBus, in io.Reader, out io.Writer) *HeadlessCLI {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &HeadlessCLI{
		dispatcher: dispatcher,
		eventBus:   eventBus,
		scanner:    scanner,
		writer:     out,
		subs:       make(map[string]<-chan domain.Envelope),
	}
}

// Run processes requests until the input ends, a quit command arrives or
// ctx is cancelled.
func (cli *HeadlessCLI) Run(ctx context.Context) error {
	defer cli.closeSubscriptions()

	cli.sendResponse(Response{
		Success: true,
		Data:    map[string]string{"status": "ready", "mode": string(ModeHeadless)},
	})

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for cli.scanner.Scan() {
			select {
			case lines <- cli.scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- cli.scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			if quit := cli.processRequest(ctx, line); quit {
				return nil
			}
		}
	}
}

func (cli *HeadlessCLI) processRequest(ctx context.Context, line string) bool {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		cli.sendError("", apperr.InvalidArgument(fmt.Sprintf("invalid JSON: %v", err)))
		return false
	}

	if req.Action == "" {
		cli.sendError(req.ID, apperr.InvalidArgument("missing action field"))
		return false
	}

	switch req.Action {
	case "subscribe":
		if req.As == "" {
			cli.sendError(req.ID, apperr.Unauthorized("subscribe requires as"))
			return false
		}
		cli.subscribe(req.As)
		cli.sendResponse(Response{
			ID:      req.ID,
			Success: true,
			Data:    map[string]string{"message": "subscribed to events for " + req.As},
		})
		return false
	case "actions":
		cli.sendResponse(Response{ID: req.ID, Success: true, Data: cli.dispatcher.Actions()})
		return false
	case "quit", "exit":
		cli.sendResponse(Response{
			ID:      req.ID,
			Success: true,
			Data:    map[string]string{"message": "goodbye"},
		})
		return true
	}

	result, err := cli.dispatcher.Execute(ctx, req.As, req.Action, req.Params)
	if err != nil {
		cli.sendError(req.ID, err)
		return false
	}

	cli.sendResponse(Response{
		ID:      req.ID,
		Success: true,
		Data:    result,
	})
	return false
}

func (cli *HeadlessCLI) subscribe(userID string) {
	cli.subsMu.Lock()
	defer cli.subsMu.Unlock()
	if _, ok := cli.subs[userID]; ok {
		return
	}
	events := cli.eventBus.Subscribe(domain.Filter{Recipient: userID})
	cli.subs[userID] = events
	cli.wg.Add(1)
	go func() {
		defer cli.wg.Done()
		for event := range events {
			cli.sendEvent(event)
		}
	}()
}

func (cli *HeadlessCLI) closeSubscriptions() {
	cli.subsMu.Lock()
	for userID, events := range cli.subs {
		cli.eventBus.Unsubscribe(events)
		delete(cli.subs, userID)
	}
	cli.subsMu.Unlock()
	cli.wg.Wait()
}

func (cli *HeadlessCLI) sendResponse(resp Response) {
	cli.mu.Lock()
	defer cli.mu.Unlock()

	data, _ := json.Marshal(resp)
	fmt.Fprintln(cli.writer, string(data))
}

func (cli *HeadlessCLI) sendError(id string, err error) {
	code, msg := apperr.Public(err)
	cli.sendResponse(Response{
		ID:      id,
		Success: false,
		Code:    string(code),
		Error:   msg,
	})
}

func (cli *HeadlessCLI) sendEvent(event domain.Envelope) {
	cli.mu.Lock()
	defer cli.mu.Unlock()

	data, _ := json.Marshal(Event{
		Type:      "event",
		Event:     string(event.Kind),
		Recipient: event.Recipient,
		Timestamp: event.EventTime,
		Data:      event.Payload,
	})
	fmt.Fprintln(cli.writer, string(data))
}
