package campaign

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"zapfacil/internal/contacts"
	"zapfacil/internal/eventbus"
	"zapfacil/internal/history"
	"zapfacil/internal/report"
	"zapfacil/pkg/logx"
)

// Run-level markers appended to the report when a run does not complete
// the full recipient list.
const (
	noteInterrupted     = "Campanha interrompida."
	noteConnectionAbort = "Campanha abortada por falha de conexão."
)

const reasonInvalidChat = "Contato/Grupo inválido."

// namePlaceholder is replaced per-recipient inside the message body.
const namePlaceholder = "@Nome"

func (e *Engine) run(ctx context.Context, cfg Config, recipients []contacts.Contact) {
	started := time.Now()
	runID := uuid.NewString()
	log := e.log.With(logx.String("run_id", runID))
	log.Info("campaign started",
		logx.String("source", cfg.Source.String()),
		logx.Int("recipients", len(recipients)))

	var (
		outcomes []Outcome
		notes    []string
	)

	for i, rc := range recipients {
		if ctx.Err() != nil {
			notes = append(notes, noteInterrupted)
			break
		}
		if !e.waitWhilePaused(ctx) {
			notes = append(notes, noteInterrupted)
			break
		}

		if !e.deps.Monitor.IsReady(ctx) {
			log.Warn("connection lost, attempting to reconnect",
				logx.Int("recipient_index", i))
			if err := e.deps.Monitor.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					notes = append(notes, noteInterrupted)
				} else {
					log.Error("reconnection failed, aborting run", logx.Err(err))
					notes = append(notes, noteConnectionAbort)
				}
				break
			}
			// The send that raced the disconnect may or may not have
			// reached the recipient; resuming can deliver it twice.
			if i > 0 {
				log.Warn("session recovered mid-run; previous recipient may receive a duplicate")
			}
		}

		e.publishProgress(Progress{Index: i + 1, Total: len(recipients), Identifier: rc.Identifier})
		outcome := e.processRecipient(ctx, cfg, rc)
		outcomes = append(outcomes, outcome)
		if outcome.Kind == OutcomeFailure {
			log.Warn("recipient failed",
				logx.String("recipient", rc.Identifier),
				logx.String("reason", outcome.Reason))
		}

		if i == len(recipients)-1 {
			break
		}
		if !e.pace(ctx) {
			notes = append(notes, noteInterrupted)
			break
		}
	}

	finished := time.Now()
	e.mu.Lock()
	e.status = Stopped
	e.cancel = nil
	e.resume = nil
	e.mu.Unlock()
	e.publishState(Stopped)

	result := e.finish(ctx, log, started, finished, runID, outcomes, notes)
	log.Info("campaign finished",
		logx.Int("total", result.Total),
		logx.Int("success", result.Success),
		logx.Int("failed", result.Failed),
		logx.String("report", result.Report))
}

// finish writes the report, records history and announces the result.
// Persistence failures are logged, never fatal: the run already happened.
func (e *Engine) finish(ctx context.Context, log logx.Logger, started, finished time.Time, runID string, outcomes []Outcome, notes []string) Result {
	sum := report.Summary{
		Started:  started,
		Finished: finished,
		Total:    len(outcomes),
		Entries:  make([]report.Entry, 0, len(outcomes)),
		Notes:    notes,
	}
	for _, o := range outcomes {
		// Partial deliveries still reached the recipient, so they count
		// toward the success total while keeping their own label.
		if o.Kind == OutcomeFailure {
			sum.Failed++
		} else {
			sum.Success++
		}
		sum.Entries = append(sum.Entries, report.Entry{
			Recipient: o.Recipient.Identifier,
			Status:    o.statusLabel(),
			Reason:    o.Reason,
		})
	}

	reportName := report.Filename(started)
	if e.deps.Reports != nil {
		name, err := e.deps.Reports.Write(sum)
		if err != nil {
			log.Error("writing campaign report", logx.Err(err))
		} else {
			reportName = name
		}
	}

	if e.deps.History != nil {
		rows := make([]history.OutcomeRow, 0, len(outcomes))
		for i, o := range outcomes {
			rows = append(rows, history.OutcomeRow{
				Seq:       i + 1,
				Recipient: o.Recipient.Identifier,
				Status:    o.statusLabel(),
				Reason:    o.Reason,
			})
		}
		run := history.Run{
			ID:         runID,
			StartedAt:  started,
			FinishedAt: finished,
			Total:      sum.Total,
			Success:    sum.Success,
			Failed:     sum.Failed,
			ReportFile: reportName,
		}
		// The run context may already be cancelled by Stop.
		if err := e.deps.History.RecordRun(context.WithoutCancel(ctx), run, rows); err != nil {
			log.Error("recording campaign history", logx.Err(err))
		}
	}

	result := Result{
		RunID:    runID,
		Started:  started,
		Finished: finished,
		Total:    sum.Total,
		Success:  sum.Success,
		Failed:   sum.Failed,
		Report:   reportName,
	}
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeCampaignDone, Data: result})
	}
	return result
}

// processRecipient opens the conversation and performs the sends. It
// always returns a value; per-recipient errors never abort the run.
func (e *Engine) processRecipient(ctx context.Context, cfg Config, rc contacts.Contact) Outcome {
	drv := e.deps.Driver

	if cfg.Source == contacts.GroupList {
		if err := drv.OpenChatByTitle(ctx, rc.Identifier); err != nil {
			return Outcome{Recipient: rc, Kind: OutcomeFailure, Reason: reasonInvalidChat}
		}
	} else {
		if err := drv.OpenDirectChat(ctx, rc.Identifier); err != nil {
			return Outcome{Recipient: rc, Kind: OutcomeFailure, Reason: reasonInvalidChat}
		}
	}

	name := rc.DisplayName
	if name == "" && cfg.Source != contacts.GroupList {
		name = drv.OpenChatTitle(ctx)
	}
	msg := applyName(cfg.Message, name)

	if strings.TrimSpace(msg) != "" {
		if err := drv.SendText(ctx, msg); err != nil {
			return Outcome{Recipient: rc, Kind: OutcomeFailure, Reason: err.Error()}
		}
	}

	outcome := Outcome{Recipient: rc, Kind: OutcomeSuccess}
	for _, path := range []string{cfg.AttachmentPath, cfg.AudioPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			// Attachment vanished between configuration and send; skip it
			// rather than fail the whole recipient.
			e.log.Warn("attachment missing, skipping", logx.String("path", path))
			continue
		}
		if err := drv.AttachFile(ctx, path); err != nil {
			outcome.Kind = OutcomePartial
			outcome.Reason = fmt.Sprintf("anexo falhou: %v", err)
			e.log.Warn("attachment failed",
				logx.String("recipient", rc.Identifier),
				logx.Err(err))
		}
	}
	return outcome
}

// applyName personalizes the message. With a known name, only the first
// comma-separated part is used; without one, the placeholder (and a
// trailing comma, if present) is removed entirely.
func applyName(message, name string) string {
	if !strings.Contains(message, namePlaceholder) {
		return message
	}
	first := strings.TrimSpace(strings.Split(name, ",")[0])
	if first != "" {
		return strings.ReplaceAll(message, namePlaceholder, first)
	}
	msg := strings.ReplaceAll(message, namePlaceholder+", ", "")
	msg = strings.ReplaceAll(msg, namePlaceholder+",", "")
	msg = strings.ReplaceAll(msg, namePlaceholder, "")
	return strings.TrimSpace(msg)
}

// pace sleeps a random duration inside the configured window. Returns
// false when the run context was cancelled during the wait.
func (e *Engine) pace(ctx context.Context) bool {
	min, max := e.opts.MinDelay, e.opts.MaxDelay
	d := min
	if max > min {
		e.mu.Lock()
		d += time.Duration(e.rnd.Int63n(int64(max - min)))
		e.mu.Unlock()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) publishProgress(p Progress) {
	if e.deps.Bus == nil {
		return
	}
	e.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeCampaignProgress, Data: p})
}
