package cache_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Kinis2025/sebelo/internal/cache"
	"github.com/Kinis2025/sebelo/internal/sensor"
)

func reading(device string, at time.Time, id uint64) sensor.Reading {
	v := float64(id)
	return sensor.Reading{DeviceID: device, ObservedAt: at, ID: id, Temperature: &v}
}

var _ = Describe("Memory", func() {
	var (
		ctx context.Context
		c   *cache.Memory
		t0  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		c = cache.NewMemory()
		Expect(c.Prime(ctx, nil)).To(Succeed())
		t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("Offer", func() {
		It("should keep the newer reading", func() {
			Expect(c.Offer(ctx, reading("s1", t0, 1))).To(Succeed())
			Expect(c.Offer(ctx, reading("s1", t0.Add(time.Second), 2))).To(Succeed())

			all, err := c.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all["s1"].ID).To(BeEquivalentTo(2))
		})

		It("should ignore an older reading that arrives late", func() {
			Expect(c.Offer(ctx, reading("s1", t0.Add(time.Second), 2))).To(Succeed())
			Expect(c.Offer(ctx, reading("s1", t0, 1))).To(Succeed())

			all, _ := c.All(ctx)
			Expect(all["s1"].ID).To(BeEquivalentTo(2))
		})

		It("should break timestamp ties by row id", func() {
			Expect(c.Offer(ctx, reading("s1", t0, 7))).To(Succeed())
			Expect(c.Offer(ctx, reading("s1", t0, 3))).To(Succeed())

			all, _ := c.All(ctx)
			Expect(all["s1"].ID).To(BeEquivalentTo(7))
		})

		It("should converge under concurrent offers", func() {
			var wg sync.WaitGroup
			for i := 1; i <= 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = c.Offer(ctx, reading("s1", t0.Add(time.Duration(i)*time.Millisecond), uint64(i)))
				}(i)
			}
			wg.Wait()

			all, _ := c.All(ctx)
			Expect(all["s1"].ID).To(BeEquivalentTo(50))
		})
	})

	Describe("Prime", func() {
		It("should merge without overwriting newer entries", func() {
			Expect(c.Offer(ctx, reading("s1", t0.Add(time.Minute), 9))).To(Succeed())
			Expect(c.Prime(ctx, []sensor.Reading{reading("s1", t0, 1), reading("s2", t0, 2)})).To(Succeed())

			all, _ := c.All(ctx)
			Expect(all).To(HaveLen(2))
			Expect(all["s1"].ID).To(BeEquivalentTo(9))
			Expect(all["s2"].ID).To(BeEquivalentTo(2))
		})
	})

	Describe("All", func() {
		It("should report a cold cache until primed", func() {
			fresh := cache.NewMemory()
			Expect(fresh.Offer(ctx, reading("s1", t0, 1))).To(Succeed())

			_, err := fresh.All(ctx)
			Expect(err).To(MatchError(cache.ErrCold))

			Expect(fresh.Prime(ctx, nil)).To(Succeed())
			all, err := fresh.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveKey("s1"))
		})

		It("should return a copy", func() {
			Expect(c.Offer(ctx, reading("s1", t0, 1))).To(Succeed())
			all, _ := c.All(ctx)
			delete(all, "s1")

			again, _ := c.All(ctx)
			Expect(again).To(HaveKey("s1"))
		})
	})

	Describe("Reset", func() {
		It("should drop every entry and the primed mark", func() {
			Expect(c.Offer(ctx, reading("s1", t0, 1))).To(Succeed())
			Expect(c.Reset(ctx)).To(Succeed())

			_, err := c.All(ctx)
			Expect(err).To(MatchError(cache.ErrCold))

			Expect(c.Prime(ctx, nil)).To(Succeed())
			all, err := c.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
			Expect(c.Close()).To(Succeed())
		})
	})
})

var _ = Describe("New", func() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	It("should reject a nil config", func() {
		_, err := cache.New(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a missing logger", func() {
		_, err := cache.New(context.Background(), &cache.Config{Backend: cache.BackendMemory})
		Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
	})

	It("should return no cache for the none backend", func() {
		c, err := cache.New(context.Background(), &cache.Config{Logger: logger, Backend: cache.BackendNone})
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNil())
	})

	It("should build the memory backend", func() {
		c, err := cache.New(context.Background(), &cache.Config{Logger: logger, Backend: cache.BackendMemory})
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeAssignableToTypeOf(&cache.Memory{}))
	})

	It("should reject an unknown backend", func() {
		_, err := cache.New(context.Background(), &cache.Config{Logger: logger, Backend: "memcached"})
		Expect(err).To(MatchError(ContainSubstring("unsupported cache backend")))
	})

	It("should fail when redis is unreachable", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := cache.New(ctx, &cache.Config{Logger: logger, Backend: cache.BackendRedis, RedisAddr: "127.0.0.1:1"})
		Expect(err).To(MatchError(ContainSubstring("failed to connect to redis")))
	})

	It("should reject an empty redis address", func() {
		_, err := cache.New(context.Background(), &cache.Config{Logger: logger, Backend: cache.BackendRedis})
		Expect(err).To(MatchError(ContainSubstring("redis addr cannot be empty")))
	})
})
