//go:build integration_test || all_tests

package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/2beens/healthpulse/internal/config"
	"github.com/2beens/healthpulse/internal/workouts"
)

const (
	integrationServerPort   = 9000
	integrationServerHost   = "127.0.0.1"
	integrationDBName       = "healthpulse"
	integrationWritesPerMin = 30
)

var integrationServerEndpoint = fmt.Sprintf("http://%s:%d", integrationServerHost, integrationServerPort)

type IntegrationTestSuite struct {
	suite.Suite

	DB         *sql.DB
	dockerPool *dockertest.Pool
	server     *Server
	httpClient *http.Client
	teardown   []func()
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

// runs before all tests are executed
func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	s.teardown = make([]func(), 0)
	s.httpClient = &http.Client{Timeout: 10 * time.Second}

	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	var err error
	s.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}
	if err = s.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}

	redisPort, err := s.redisSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup redis: %s", err)
	}

	pgPort, err := s.postgresSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup postgres: %s", err)
	}

	cfg := &config.Config{
		Environment:                 "test",
		Host:                        integrationServerHost,
		Port:                        integrationServerPort,
		Timezone:                    "UTC",
		Storage:                     config.StoragePostgres,
		PostgresHost:                "localhost",
		PostgresPort:                pgPort,
		PostgresDBName:              integrationDBName,
		RedisHost:                   "localhost",
		RedisPort:                   redisPort,
		Cache:                       config.CacheRedis,
		CacheTTL:                    time.Minute,
		WriteRateLimitAllowedPerMin: integrationWritesPerMin,
		PrometheusMetricsHost:       integrationServerHost,
		PrometheusMetricsPort:       "9001",
	}
	s.server, err = NewServer(ctx, NewServerParams{
		Config:       cfg,
		PostgresUser: "postgres",
		VersionInfo:  "test-version-info",
	})
	if err != nil {
		s.cleanup()
		log.Fatalf("new server: %s", err)
	}

	s.server.Serve(cfg.Host, cfg.Port)

	if err := s.dockerPool.Retry(func() error {
		resp, err := s.httpClient.Get(integrationServerEndpoint + "/health")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health status: %d", resp.StatusCode)
		}
		return nil
	}); err != nil {
		s.cleanup()
		log.Fatalf("server not healthy: %s", err)
	}
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cleanup()
}

func (s *IntegrationTestSuite) cleanup() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			fmt.Printf(" --> test suite db close error: %s\n", err)
		}
	}
	if s.server != nil {
		s.server.GracefulShutdown()
	}
	for _, teardown := range s.teardown {
		teardown()
	}
}

func (s *IntegrationTestSuite) redisSetup() (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7.2",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %w", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := redisResource.Close(); err != nil {
			fmt.Printf("redis teardown: %s\n", err)
		}
	})

	return redisResource.GetPort("6379/tcp"), nil
}

func (s *IntegrationTestSuite) postgresSetup() (string, error) {
	pgResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=" + integrationDBName,
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		return "", fmt.Errorf("dockerpool run postgres: %w", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := pgResource.Close(); err != nil {
			fmt.Printf("postgres teardown: %s\n", err)
		}
	})

	pgPort := pgResource.GetPort("5432/tcp")
	dsn := fmt.Sprintf("postgres://postgres@localhost:%s/%s?sslmode=disable", pgPort, integrationDBName)

	// plain database/sql connection, used by the tests to check the stored rows
	if err := s.dockerPool.Retry(func() error {
		var err error
		s.DB, err = sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		return s.DB.Ping()
	}); err != nil {
		return "", fmt.Errorf("connect to db: %w", err)
	}

	return pgPort, nil
}

func (s *IntegrationTestSuite) post(ctx context.Context, path, body string) (int, []byte) {
	t := s.T()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, integrationServerEndpoint+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp.StatusCode, raw
}

func (s *IntegrationTestSuite) get(ctx context.Context, path string, target any) int {
	t := s.T()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, integrationServerEndpoint+path, nil)
	require.NoError(t, err)

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func (s *IntegrationTestSuite) TestGoalsAndEntries() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t := s.T()

	status, _ := s.post(ctx, "/api/user/entries/mila", `{"activity":"Running","date":"2024-06-01","duration":30}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = s.post(ctx, "/api/user/goals/mila", `{"activity":"Running","duration":30,"weight":58}`)
	require.Equal(t, http.StatusOK, status)

	// the profile is cached now, and must be invalidated by the next write
	var profile workouts.Profile
	require.Equal(t, http.StatusOK, s.get(ctx, "/api/user/profile/mila", &profile))
	assert.Empty(t, profile.Activities)

	status, body := s.post(ctx, "/api/user/entries/mila", `{"activity":"running","date":"2024-06-01","duration":40,"distance":8}`)
	require.Equal(t, http.StatusCreated, status, string(body))

	require.Equal(t, http.StatusOK, s.get(ctx, "/api/user/profile/mila", &profile))
	require.Len(t, profile.Activities, 1)
	assert.Equal(t, "Running", profile.Activities[0].Activity)
	assert.Equal(t, 8.0, profile.Activities[0].Distance)

	var storedDate time.Time
	require.NoError(t, s.DB.QueryRowContext(ctx,
		`SELECT entry_date FROM entry WHERE username = $1 AND activity_key = $2`,
		"mila", "running",
	).Scan(&storedDate))
	assert.Equal(t, "2024-06-01", storedDate.Format(time.DateOnly))

	var stats workouts.StatsResult
	require.Equal(t, http.StatusOK, s.get(ctx, "/api/user/stats/mila/Running?startDate=2024-06-01&endDate=2024-06-30", &stats))
	assert.Equal(t, 40.0, stats.TotalDuration)
	// 9.8 MET x 58 kg x 40 min
	assert.Equal(t, 379, stats.TotalCalories)
}

func (s *IntegrationTestSuite) TestConcurrentDuplicateEntries() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t := s.T()

	status, _ := s.post(ctx, "/api/user/goals/luka", `{"activity":"Cycling","distance":20}`)
	require.Equal(t, http.StatusOK, status)

	const writers = 8
	statuses := make(chan int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := s.post(ctx, "/api/user/entries/luka", `{"activity":"Cycling","date":"2024-05-20","duration":60}`)
			statuses <- status
		}()
	}
	wg.Wait()
	close(statuses)

	created := 0
	for status := range statuses {
		if status == http.StatusCreated {
			created++
			continue
		}
		assert.Equal(t, http.StatusConflict, status)
	}
	assert.Equal(t, 1, created)

	var count int
	require.NoError(t, s.DB.QueryRowContext(ctx, `SELECT count(*) FROM entry WHERE username = 'luka'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func (s *IntegrationTestSuite) TestWriteRateLimit() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t := s.T()

	limited := false
	for i := 0; i <= integrationWritesPerMin; i++ {
		status, _ := s.post(ctx, "/api/user/goals/rate-limited", `{"activity":"Yoga","duration":20}`)
		if status == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, status)
	}
	assert.True(t, limited)

	// other users are not affected
	status, _ := s.post(ctx, "/api/user/goals/not-limited", `{"activity":"Yoga","duration":20}`)
	assert.Equal(t, http.StatusOK, status)
}
