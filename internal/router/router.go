package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/taskflow/tasksync/internal/cache"
	"github.com/taskflow/tasksync/internal/notify"
	"github.com/taskflow/tasksync/internal/protocol"
)

// Router dispatches inbound envelopes to cache invalidation, notifications,
// and the presence roster.
type Router struct {
	cfg      Config
	logger   *slog.Logger
	store    Invalidator
	presence PresenceSink
	notifier notify.Notifier

	input <-chan protocol.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// NewRouter creates a new Message Router consuming from input.
func NewRouter(cfg Config, input <-chan protocol.Envelope, store Invalidator, presence PresenceSink, notifier notify.Notifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Discard
	}

	return &Router{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		presence: presence,
		notifier: notifier,
		input:    input,
	}
}

// Start begins routing messages.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started", "local_user", r.cfg.LocalUserID)
	return nil
}

// Stop shuts the router down, waiting up to ctx for the loop to drain.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}
	return nil
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// routeLoop is the main routing goroutine. Envelopes are handled one at a
// time in arrival order.
func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case env, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.Route(env)
		}
	}
}

// Route dispatches a single envelope.
func (r *Router) Route(env protocol.Envelope) {
	r.count(func(s *Stats) { s.Received++ })

	switch env.Type {
	case protocol.TypeTaskCreated, protocol.TypeTaskUpdated, protocol.TypeTaskDeleted:
		r.invalidate(taskScopes(env)...)

	case protocol.TypeTaskCommentAdded:
		scopes := []cache.Scope{{Kind: cache.ScopeTaskComments, TaskID: env.String("task_id")}}
		r.invalidate(scopes...)
		// Only the task's assignee cares, and never about their own
		// comment.
		if env.String("assignee_id") == r.cfg.LocalUserID && !r.isLocalActor(env) {
			r.notify(notify.Notification{
				Key:   fmt.Sprintf("comment:%s:%s", env.String("task_id"), env.Actor()),
				Level: notify.LevelInfo,
				Title: "New comment",
				Body:  fmt.Sprintf("%s commented on %q", actorName(env), taskTitle(env)),
			})
		}

	case protocol.TypeTaskAssigned:
		r.invalidate(
			cache.Scope{Kind: cache.ScopeTaskList, ProjectID: env.String("project_id")},
			cache.Scope{Kind: cache.ScopeTaskDetail, TaskID: env.String("task_id")},
		)
		if env.String("assignee_id") == r.cfg.LocalUserID && !r.isLocalActor(env) {
			r.notify(notify.Notification{
				Key:   fmt.Sprintf("assigned:%s:%s", env.String("task_id"), r.cfg.LocalUserID),
				Level: notify.LevelInfo,
				Title: "Task assigned to you",
				Body:  fmt.Sprintf("%s assigned you %q", actorName(env), taskTitle(env)),
			})
		}

	case protocol.TypeTaskCompleted:
		r.invalidate(taskScopes(env)...)
		if r.isLocalActor(env) {
			r.notify(notify.Notification{
				Key:   "completed:" + env.String("task_id"),
				Level: notify.LevelSuccess,
				Title: "Task completed",
				Body:  fmt.Sprintf("You completed %q", taskTitle(env)),
			})
		} else {
			r.notify(notify.Notification{
				Key:   "completed:" + env.String("task_id"),
				Level: notify.LevelInfo,
				Title: "Task completed",
				Body:  fmt.Sprintf("%s completed %q", actorName(env), taskTitle(env)),
			})
		}

	case protocol.TypeProjectCreated, protocol.TypeProjectUpdated, protocol.TypeProjectDeleted:
		r.invalidate(cache.Scope{Kind: cache.ScopeProjectList})
		if !r.isLocalActor(env) {
			verb := map[string]string{
				protocol.TypeProjectCreated: "created",
				protocol.TypeProjectUpdated: "updated",
				protocol.TypeProjectDeleted: "deleted",
			}[env.Type]
			r.notify(notify.Notification{
				Key:   fmt.Sprintf("%s:%s", env.Type, env.String("project_id")),
				Level: notify.LevelInfo,
				Title: "Project " + verb,
				Body:  fmt.Sprintf("%s %s %q", actorName(env), verb, projectName(env)),
			})
		}

	case protocol.TypeProjectMemberAdded, protocol.TypeProjectMemberRemoved:
		r.invalidate(cache.Scope{Kind: cache.ScopeProjectMembership, ProjectID: env.String("project_id")})
		if env.String("member_id") == r.cfg.LocalUserID && !r.isLocalActor(env) {
			title := "Added to project"
			body := fmt.Sprintf("%s added you to %q", actorName(env), projectName(env))
			if env.Type == protocol.TypeProjectMemberRemoved {
				title = "Removed from project"
				body = fmt.Sprintf("%s removed you from %q", actorName(env), projectName(env))
			}
			r.notify(notify.Notification{
				Key:   fmt.Sprintf("%s:%s:%s", env.Type, env.String("project_id"), r.cfg.LocalUserID),
				Level: notify.LevelInfo,
				Title: title,
				Body:  body,
			})
		}

	case protocol.TypeUserOnline, protocol.TypeUserAway, protocol.TypeUserOffline:
		// Presence events feed the roster, not general cache invalidation.
		r.count(func(s *Stats) { s.Presence++ })
		if r.presence != nil {
			r.presence.HandlePresence(env)
		}

	case protocol.TypeActivityCreated:
		r.invalidate(cache.Scope{Kind: cache.ScopeActivityFeed, ProjectID: env.String("project_id")})

	case protocol.TypePong, protocol.TypePing, protocol.TypeConnected,
		protocol.TypeSubscribed, protocol.TypeUnsubscribed:
		// Heartbeat acknowledgments and server confirmations.

	case protocol.TypeError:
		r.logger.Warn("server error message", "data", env.Data)

	default:
		// Unknown types are expected from newer servers; never an error.
		r.logger.Debug("unknown message type", "type", env.Type)
		r.count(func(s *Stats) { s.Unknown++ })
	}
}

// isLocalActor reports whether the envelope describes an action by the
// signed-in user.
func (r *Router) isLocalActor(env protocol.Envelope) bool {
	actor := env.Actor()
	return actor != "" && actor == r.cfg.LocalUserID
}

func (r *Router) invalidate(scopes ...cache.Scope) {
	if r.store == nil || len(scopes) == 0 {
		return
	}
	r.store.Invalidate(scopes...)
	r.count(func(s *Stats) { s.Invalidated++ })
}

func (r *Router) notify(n notify.Notification) {
	r.notifier.Notify(n)
	r.count(func(s *Stats) { s.Notified++ })
}

func (r *Router) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// taskScopes is the invalidation set shared by task lifecycle events. A
// project_id in the payload narrows the project-scoped entries.
func taskScopes(env protocol.Envelope) []cache.Scope {
	projectID := env.String("project_id")
	scopes := []cache.Scope{
		{Kind: cache.ScopeTaskList, ProjectID: projectID},
		{Kind: cache.ScopeTaskStats, ProjectID: projectID},
	}
	if taskID := env.String("task_id"); taskID != "" {
		scopes = append(scopes, cache.Scope{Kind: cache.ScopeTaskDetail, TaskID: taskID})
	}
	return scopes
}

func actorName(env protocol.Envelope) string {
	if name := env.String("user_name"); name != "" {
		return name
	}
	return "Someone"
}

func taskTitle(env protocol.Envelope) string {
	if title := env.String("title"); title != "" {
		return title
	}
	return "a task"
}

func projectName(env protocol.Envelope) string {
	if name := env.String("project_name"); name != "" {
		return name
	}
	if name := env.String("name"); name != "" {
		return name
	}
	return "a project"
}
