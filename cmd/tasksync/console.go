package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/taskflow/tasksync/internal/cache"
	"github.com/taskflow/tasksync/internal/notify"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

// consoleNotifier renders notifications to the terminal.
func consoleNotifier() notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		c := infoColor
		switch n.Level {
		case notify.LevelSuccess:
			c = successColor
		case notify.LevelWarn:
			c = warnColor
		case notify.LevelError:
			c = errorColor
		}
		c.Printf("● %s", n.Title)
		if n.Body != "" {
			fmt.Printf("  %s", n.Body)
		}
		fmt.Println()
	})
}

// printInvalidation renders one cache invalidation scope.
func printInvalidation(scope cache.Scope) {
	detail := ""
	if scope.ProjectID != "" {
		detail += " project=" + scope.ProjectID
	}
	if scope.TaskID != "" {
		detail += " task=" + scope.TaskID
	}
	dimColor.Printf("  ↻ invalidated %s%s\n", scope.Kind, detail)
}
