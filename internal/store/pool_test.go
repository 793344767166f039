package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/pkg/metrics"
)

var _ = Describe("Pool", func() {
	Describe("NewPool", func() {
		It("should reject a nil config", func() {
			_, err := store.NewPool(nil)
			Expect(err).To(MatchError(ContainSubstring("cannot be nil")))
		})

		It("should reject a missing logger", func() {
			_, err := store.NewPool(&store.PoolConfig{DSN: "x"})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})

		It("should reject an empty dsn", func() {
			_, err := store.NewPool(&store.PoolConfig{Logger: discardLogger()})
			Expect(err).To(MatchError(ContainSubstring("dsn cannot be empty")))
		})

		It("should reject an unknown driver", func() {
			_, err := store.NewPool(&store.PoolConfig{Logger: discardLogger(), Driver: "oracle", DSN: "x"})
			Expect(err).To(MatchError(ContainSubstring("unsupported store driver")))
		})
	})

	Context("before Start", func() {
		It("should be open and refuse handles", func() {
			pool, err := store.NewPool(&store.PoolConfig{Logger: discardLogger(), Driver: store.DriverSQLite, DSN: "unused.db"})
			Expect(err).NotTo(HaveOccurred())

			Expect(pool.State()).To(Equal(store.StateOpen))
			_, err = pool.DB()
			Expect(err).To(MatchError(store.ErrUnavailable))
			Expect(pool.Close()).To(Succeed())
			Expect(pool.State()).To(Equal(store.StateClosed))
		})
	})

	Context("with a reachable database", func() {
		It("should become healthy and hand out the handle", func() {
			pool := newSQLitePool()

			Expect(pool.State()).To(Equal(store.StateHealthy))
			db, err := pool.DB()
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Migrator().HasTable("sensor_data")).To(BeTrue())
			Expect(db.Migrator().HasTable("sensors")).To(BeTrue())
			Expect(db.Migrator().HasIndex(&store.ReadingRecord{}, "idx_sensor_data_sensor_ts")).To(BeTrue())
		})

		It("should refuse a second Start", func() {
			pool := newSQLitePool()
			Expect(pool.Start(context.Background())).NotTo(Succeed())
		})

		It("should stay healthy after a reported failure when the ping succeeds", func() {
			pool := newSQLitePool()
			pool.ReportFailure(errors.New("constraint violation"))
			Consistently(pool.State, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(store.StateHealthy))
		})

		It("should never block on repeated failure reports", func() {
			pool := newSQLitePool()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for range 100 {
					pool.ReportFailure(errors.New("boom"))
				}
			}()
			Eventually(done).Should(BeClosed())
		})

		It("should be closed and unavailable after Close", func() {
			pool := newSQLitePool()
			Expect(pool.Close()).To(Succeed())

			Expect(pool.State()).To(Equal(store.StateClosed))
			_, err := pool.DB()
			Expect(err).To(MatchError(store.ErrUnavailable))
			Expect(pool.Close()).To(Succeed())
			Expect(pool.Start(context.Background())).To(MatchError(store.ErrUnavailable))
		})
	})

	Context("with an unreachable database", func() {
		var (
			dir  string
			pool *store.Pool
			reg  *prometheus.Registry
			m    *metrics.StoreMetrics
		)

		BeforeEach(func() {
			dir = filepath.Join(GinkgoT().TempDir(), "not-yet")
			reg = prometheus.NewRegistry()
			m = metrics.NewStoreMetrics(reg, "test")

			var err error
			pool, err = store.NewPool(&store.PoolConfig{
				Logger:         discardLogger(),
				Metrics:        m,
				Driver:         store.DriverSQLite,
				DSN:            filepath.Join(dir, "sensor.db"),
				HealthInterval: 50 * time.Millisecond,
				InitialBackoff: 10 * time.Millisecond,
				MaxBackoff:     40 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(pool.Start(context.Background())).To(Succeed())
			DeferCleanup(pool.Close)
		})

		It("should reconnect with backoff and fail fast meanwhile", func() {
			Eventually(pool.State).Should(Equal(store.StateReconnecting))

			start := time.Now()
			_, err := pool.DB()
			Expect(err).To(MatchError(store.ErrUnavailable))
			Expect(time.Since(start)).To(BeNumerically("<", 50*time.Millisecond))

			Eventually(func() float64 { return testutil.ToFloat64(m.ReconnectAttempts) }).Should(BeNumerically(">=", 2))
			Expect(testutil.ToFloat64(m.PoolState.WithLabelValues("reconnecting"))).To(Equal(1.0))
		})

		It("should become healthy once the database appears", func() {
			Eventually(pool.State).Should(Equal(store.StateReconnecting))
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

			Eventually(pool.State, 5*time.Second).Should(Equal(store.StateHealthy))
			Expect(testutil.ToFloat64(m.PoolState.WithLabelValues("healthy"))).To(Equal(1.0))
		})

		It("should stop retrying when closed", func() {
			Eventually(pool.State).Should(Equal(store.StateReconnecting))
			Expect(pool.Close()).To(Succeed())
			Expect(pool.State()).To(Equal(store.StateClosed))
		})

		It("should report a timeout from WaitHealthy", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			Expect(pool.WaitHealthy(ctx)).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("State", func() {
		DescribeTable("String",
			func(s store.State, expected string) {
				Expect(s.String()).To(Equal(expected))
			},
			Entry("open", store.StateOpen, "open"),
			Entry("healthy", store.StateHealthy, "healthy"),
			Entry("reconnecting", store.StateReconnecting, "reconnecting"),
			Entry("closed", store.StateClosed, "closed"),
			Entry("unknown", store.State(42), "state(42)"),
		)
	})

	Describe("PostgresDSN", func() {
		It("should build a key/value connection string", func() {
			Expect(store.PostgresDSN("db", 5432, "u", "p", "sensors", "disable")).
				To(Equal("host=db port=5432 user=u password=p dbname=sensors sslmode=disable"))
		})
	})
})
