package eventbus

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Scheduler starts detached tasks. Their failures never reach the caller.
type Scheduler interface {
	Go(task func())
}

// TaskGroup runs detached tasks on goroutines and can wait for all of them
// to finish.
type TaskGroup struct {
	log   logrus.FieldLogger
	group errgroup.Group
}

func NewTaskGroup(log logrus.FieldLogger) *TaskGroup {
	return &TaskGroup{log: log}
}

// Go starts task on its own goroutine. A panic is recovered, logged and
// reported by Wait.
func (t *TaskGroup) Go(task func()) {
	t.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				t.log.Errorf("Detached task panicked: %v\n%s", r, debug.Stack())
				err = fmt.Errorf("detached task panicked: %v", r)
			}
		}()
		task()
		return nil
	})
}

// Wait blocks until every task started so far, and every task those tasks
// started, has returned. It returns the first panic of the group's lifetime.
func (t *TaskGroup) Wait() error {
	return t.group.Wait()
}

// Inline runs tasks synchronously on the caller's goroutine.
type Inline struct{}

func (Inline) Go(task func()) {
	task()
}
