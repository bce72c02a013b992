package simulator

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// user runs one simulated user's state machine:
// session-init, then weighted tasks until ctx is cancelled.
type user struct {
	sim       *Simulator
	persona   *Persona
	rng       *rand.Rand
	lastQuery string
	logger    *zap.Logger
}

func (u *user) run(ctx context.Context) {
	var pending Task
	for ctx.Err() == nil {
		if u.persona.SessionID == "" {
			if !u.initSession(ctx) {
				// retried on the next cycle
				if !u.think(ctx) {
					return
				}
				continue
			}
		}

		task := pending
		pending = ""
		if task == "" {
			task = pickTask(u.sim.tasks, u.rng)
		}
		if task == TaskIdle {
			if !u.think(ctx) {
				return
			}
			continue
		}

		res, ok := u.attempt(ctx, task)
		if !ok {
			return
		}
		u.sim.record(u.persona, task, res)

		if res.Outcome == Retryable {
			pending = task
			u.logger.Debug("rate limited, requeueing task",
				zap.String("task", string(task)), zap.Duration("delay", res.Delay))
			if !sleep(ctx, res.Delay) {
				return
			}
			continue
		}
		if !u.think(ctx) {
			return
		}
	}
}

func (u *user) initSession(ctx context.Context) bool {
	id, err := u.sim.client.CreateSession(ctx, u.persona)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		u.sim.sessionFailures.Add(1)
		u.logger.Debug("session init failed", zap.Error(err))
		return false
	}
	u.persona.SessionID = id
	u.sim.sessions.Add(1)
	return true
}

// attempt runs one task. ok is false when ctx ended mid-attempt; such an
// attempt is dropped rather than counted.
func (u *user) attempt(ctx context.Context, task Task) (Result, bool) {
	start := time.Now()
	err := u.execute(ctx, task)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return Result{}, false
	}
	return classify(latency, err, u.sim.cfg.Backoff), true
}

func (u *user) execute(ctx context.Context, task Task) error {
	c := u.sim.client
	switch task {
	case TaskQuery:
		q := u.persona.Query(u.rng)
		_, err := c.Chat(ctx, task, u.chat(q, ""))
		if err == nil {
			u.lastQuery = q
		}
		return err
	case TaskFollowUp:
		if u.lastQuery == "" {
			u.lastQuery = u.persona.Query(u.rng)
		}
		_, err := c.Chat(ctx, task, u.chat("can you expand on that?", u.lastQuery))
		return err
	case TaskStream:
		_, err := c.Stream(ctx, u.chat(u.persona.Query(u.rng), ""))
		return err
	case TaskHealth:
		return c.Probe(ctx, task, "/health")
	case TaskHealthDetailed:
		return c.Probe(ctx, task, "/health/detailed")
	case TaskStatus:
		return c.Probe(ctx, task, "/api/status")
	}
	return nil
}

func (u *user) chat(message, prior string) chatRequest {
	return chatRequest{
		SessionID:  u.persona.SessionID,
		UserID:     u.persona.UserID,
		Message:    message,
		SearchMode: u.persona.SearchMode(u.rng),
		Context:    prior,
	}
}

func (u *user) think(ctx context.Context) bool {
	return sleep(ctx, u.persona.ThinkTime(u.rng, u.sim.cfg.ThinkScale))
}

// sleep waits for d or until ctx is done, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
