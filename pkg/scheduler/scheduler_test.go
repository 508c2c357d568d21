package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type SchedulerTestSuite struct {
	suite.Suite
}

func (s *SchedulerTestSuite) TestDefaultSpec() {
	sched, err := New("", func() error { return nil })
	s.Require().NoError(err)
	s.Equal(DefaultSpec, sched.Spec())
	s.True(sched.Next().IsZero())
}

func (s *SchedulerTestSuite) TestInvalidSpec() {
	_, err := New("every tuesday", func() error { return nil })
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid schedule")

	_, err = New("0 0 */6 * * *", func() error { return nil })
	s.Error(err, "six-field expressions are not accepted")
}

func (s *SchedulerTestSuite) TestNextAfterStart() {
	sched, err := New("0 */6 * * *", func() error { return nil })
	s.Require().NoError(err)

	sched.Start()
	defer func() { s.NoError(sched.Stop(context.Background())) }()

	next := sched.Next()
	s.False(next.IsZero())
	s.Zero(next.Minute())
	s.Zero(next.Hour() % 6)
	s.True(next.After(time.Now()))
}

func (s *SchedulerTestSuite) TestJobRunsAndErrorsAreTolerated() {
	var calls atomic.Int32
	sched, err := New("@every 1s", func() error {
		calls.Add(1)
		return errors.New("check already running")
	})
	s.Require().NoError(err)

	sched.Start()
	s.Eventually(func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	s.NoError(sched.Stop(context.Background()))
}

func (s *SchedulerTestSuite) TestPanicIsRecovered() {
	var calls atomic.Int32
	sched, err := New("@every 1s", func() error {
		calls.Add(1)
		panic("boom")
	})
	s.Require().NoError(err)

	sched.Start()
	s.Eventually(func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	s.NoError(sched.Stop(context.Background()))
}

func (s *SchedulerTestSuite) TestStopHonoursContext() {
	started := make(chan struct{})
	release := make(chan struct{})
	sched, err := New("@every 1s", func() error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	s.Require().NoError(err)

	sched.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(sched.Stop(ctx), context.DeadlineExceeded)

	close(release)
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}
