package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

type ScyllaDB struct {
	Session *gocql.Session
}

// ConnectScylla opens a session on the keyspace. Lightweight transactions need
// SERIAL consistency for the Paxos round, so it is set explicitly.
func ConnectScylla(keyspace string, hosts ...string) (*ScyllaDB, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no scylladb hosts configured")
	}

	if err := ensureKeyspace(keyspace, hosts...); err != nil {
		return nil, err
	}

	cluster := newCluster(hosts...)
	cluster.Keyspace = keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylladb session: %w", err)
	}

	return &ScyllaDB{Session: session}, nil
}

func (s *ScyllaDB) Close() {
	if s.Session != nil {
		s.Session.Close()
	}
}

func (s *ScyllaDB) HealthCheck(ctx context.Context) error {
	if err := s.Session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylladb health check failed: %w", err)
	}
	return nil
}

func newCluster(hosts ...string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.Serial
	cluster.Timeout = 5 * time.Second
	return cluster
}

func ensureKeyspace(keyspace string, hosts ...string) error {
	session, err := newCluster(hosts...).CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create scylladb session: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
		keyspace,
	)
	if err := session.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace %s: %w", keyspace, err)
	}
	return nil
}
