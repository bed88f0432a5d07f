package service

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// Closer is implemented by components that release resources on shutdown,
// such as the conversion supervisor.
type Closer interface {
	Close()
}

// CloserService ties a Closer to the tree's lifetime: Serve blocks until the
// tree stops and then closes the component.
type CloserService struct {
	closer Closer
	name   string
}

// NewCloserService wraps c under the given service name.
func NewCloserService(name string, c Closer) *CloserService {
	return &CloserService{closer: c, name: name}
}

// Serve implements suture.Service. The service is not restarted after Close.
func (s *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.closer.Close()
	return suture.ErrDoNotRestart
}

func (s *CloserService) String() string {
	return s.name
}
