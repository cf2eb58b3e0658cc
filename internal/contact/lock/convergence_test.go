//go:build integration

package lock_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/suite"

	"contactlink/internal/contact/models"
	"contactlink/internal/contact/service"
)

// convergenceSuite runs overlapping resolutions through one ClusterTx and
// checks the store ends with a single well-formed cluster.
type convergenceSuite struct {
	suite.Suite
	store service.Store
	tx    service.ClusterTx
}

func ptr(v string) *string { return &v }

func (s *convergenceSuite) newService() *service.Service {
	return service.New(s.store, s.tx, service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *convergenceSuite) TestConcurrentNewIdentity() {
	svc := s.newService()
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	ids := make(chan int64, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := svc.Identify(ctx, models.IdentifyRequest{Email: ptr("same@x.io"), PhoneNumber: ptr("1")})
			if s.NoError(err) {
				ids <- identity.PrimaryContactID
			}
		}()
	}
	wg.Wait()
	close(ids)

	first := <-ids
	for id := range ids {
		s.Equal(first, id)
	}
	matches, err := s.store.FindByIdentifier(ctx, ptr("same@x.io"), nil)
	s.Require().NoError(err)
	s.Len(matches, 1)
}

func (s *convergenceSuite) TestConcurrentMerges() {
	svc := s.newService()
	ctx := context.Background()
	const n = 8

	var all []int64
	for i := range n {
		identity, err := svc.Identify(ctx, models.IdentifyRequest{
			Email:       ptr(fmt.Sprintf("m%d@x.io", i)),
			PhoneNumber: ptr(fmt.Sprintf("m%d", i)),
		})
		s.Require().NoError(err)
		all = append(all, identity.PrimaryContactID)
	}

	var wg sync.WaitGroup
	for i := range n - 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Identify(ctx, models.IdentifyRequest{
				Email:       ptr(fmt.Sprintf("m%d@x.io", i)),
				PhoneNumber: ptr(fmt.Sprintf("m%d", i+1)),
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	cluster, err := s.store.FindAllLinkedTo(ctx, all)
	s.Require().NoError(err)
	s.Require().Len(cluster, n)
	s.True(cluster[0].IsPrimary())
	s.Equal(all[0], cluster[0].ID)
	for _, c := range cluster[1:] {
		s.False(c.IsPrimary())
		s.Require().NotNil(c.LinkedID)
		s.Equal(all[0], *c.LinkedID)
	}
}
