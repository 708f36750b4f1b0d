package eventprocessor

import (
	"fmt"

	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

// ProcessEventHandler handles validated process events.
type ProcessEventHandler interface {
	HandleProcessStart(e event.Event, metadata *procmeta.ProcessMetadata) error
	HandleProcessSignal(e event.Event) error
	HandleProcessExit(e event.Event, metadata *procmeta.ProcessMetadata) error
}

// Processor coordinates event processing.
// It validates events, keeps the metadata manager current and routes events
// to the process handler.
type Processor struct {
	sessionID       string
	metadataManager *procmeta.Manager
	processHandler  ProcessEventHandler
}

// NewProcessor creates a new event processor for one session.
func NewProcessor(
	sessionID string,
	metadataManager *procmeta.Manager,
	processHandler ProcessEventHandler,
) *Processor {
	return &Processor{
		sessionID:       sessionID,
		metadataManager: metadataManager,
		processHandler:  processHandler,
	}
}

// HandleEvent routes events by kind to specialized handlers.
func (p *Processor) HandleEvent(e event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Identity.SessionID != p.sessionID {
		return fmt.Errorf("%w: session %q, expected %q", event.ErrMalformedEvent, e.Identity.SessionID, p.sessionID)
	}

	switch e.Kind {
	case event.KindStart:
		return p.handleStart(e)
	case event.KindSignal:
		return p.processHandler.HandleProcessSignal(e)
	case event.KindExit:
		return p.handleExit(e)
	default:
		// Unreachable after Validate
		return nil
	}
}

// handleStart processes Start events.
func (p *Processor) handleStart(e event.Event) error {
	pid := e.Identity.PID
	metadata := procmeta.FromStart(e)

	if previous := p.metadataManager.Set(pid, metadata); previous != nil {
		p.metadataManager.AddIssue(pid, fmt.Sprintf("pid reused before exit of %q", previous.CmdlineFull))
	}

	return p.processHandler.HandleProcessStart(e, metadata)
}

// handleExit processes Exit events.
func (p *Processor) handleExit(e event.Event) error {
	pid := e.Identity.PID
	metadata := p.metadataManager.Get(pid)

	if !p.metadataManager.Delete(pid) {
		p.metadataManager.AddIssue(pid, "exit without start")
	}

	return p.processHandler.HandleProcessExit(e, metadata)
}
