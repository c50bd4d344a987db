// Package logtail follows a growing log file.
package logtail

import (
	"context"

	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"
)

// Tailer streams lines from a log file as they are written.
type Tailer struct {
	path   string
	logger logrus.FieldLogger

	// FromStart reads existing content before following. By default only
	// lines written after Tail starts are delivered.
	FromStart bool
	// Poll uses stat polling instead of inotify.
	Poll bool
}

func New(path string, logger logrus.FieldLogger) *Tailer {
	return &Tailer{
		path:   path,
		logger: logger,
	}
}

// Tail follows the file and sends each line to out until ctx is done. The
// file is reopened if it is rotated.
func (t *Tailer) Tail(ctx context.Context, out chan<- string) error {
	cfg := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      t.Poll,
		Logger:    tail.DiscardingLogger,
	}
	if !t.FromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: 2}
	}

	tf, err := tail.TailFile(t.path, cfg)
	if err != nil {
		return err
	}
	defer tf.Cleanup()

	t.logger.Infof("tailing log file %s", t.path)

	for {
		select {
		case <-ctx.Done():
			_ = tf.Stop()
			return ctx.Err()
		case line, ok := <-tf.Lines:
			if !ok {
				return tf.Err()
			}
			if line.Err != nil {
				t.logger.Errorf("tail error: %v", line.Err)
				continue
			}
			select {
			case out <- line.Text:
			case <-ctx.Done():
				_ = tf.Stop()
				return ctx.Err()
			}
		}
	}
}
