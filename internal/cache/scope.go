package cache

import "fmt"

// ScopeKind identifies a family of cached data.
type ScopeKind string

const (
	ScopeTaskList     ScopeKind = "task_list"
	ScopeTaskDetail   ScopeKind = "task_detail"
	ScopeTaskStats    ScopeKind = "task_stats"
	ScopeTaskComments ScopeKind = "task_comments"

	ScopeProjectList       ScopeKind = "project_list"
	ScopeProjectMembership ScopeKind = "project_membership"

	ScopeActivityFeed ScopeKind = "activity_feed"
)

// Scope tags a slot with the family it belongs to, optionally narrowed to a
// single project or task. An empty ProjectID/TaskID on an invalidation scope
// means "the whole family".
type Scope struct {
	Kind      ScopeKind
	ProjectID string
	TaskID    string
}

// ForProject narrows the scope to one project.
func (s Scope) ForProject(projectID string) Scope {
	s.ProjectID = projectID
	return s
}

// ForTask narrows the scope to one task.
func (s Scope) ForTask(taskID string) Scope {
	s.TaskID = taskID
	return s
}

// Matches reports whether an invalidation scope s covers the slot scope
// other. Kinds must agree; a narrowed field on s only covers slots with the
// same narrowing, while an empty field covers everything in the family.
func (s Scope) Matches(other Scope) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.ProjectID != "" && s.ProjectID != other.ProjectID {
		return false
	}
	if s.TaskID != "" && s.TaskID != other.TaskID {
		return false
	}
	return true
}

func (s Scope) String() string {
	out := string(s.Kind)
	if s.ProjectID != "" {
		out = fmt.Sprintf("%s[project=%s]", out, s.ProjectID)
	}
	if s.TaskID != "" {
		out = fmt.Sprintf("%s[task=%s]", out, s.TaskID)
	}
	return out
}
