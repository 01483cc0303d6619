package google

import (
	"sync"
	"testing"
	"time"
)

func TestRowCacheExpiration(t *testing.T) {
	c := &Client{cacheValidDuration: 50 * time.Millisecond}

	if _, ok := c.cachedNextRow("2026 Transactions"); ok {
		t.Fatal("cache should start expired")
	}

	c.storeRowCount("2026 Transactions", 10)
	next, ok := c.cachedNextRow("2026 Transactions")
	if !ok {
		t.Fatal("cache should be valid immediately after store")
	}
	if next != 11 {
		t.Errorf("next row = %d, want 11", next)
	}

	time.Sleep(75 * time.Millisecond)
	if _, ok := c.cachedNextRow("2026 Transactions"); ok {
		t.Error("cache should be expired after TTL")
	}
}

func TestRowCacheIsPerSheet(t *testing.T) {
	c := &Client{cacheValidDuration: time.Minute}
	c.storeRowCount("2025 Transactions", 40)

	if _, ok := c.cachedNextRow("2026 Transactions"); ok {
		t.Error("count of another sheet must not be reused")
	}
	if next, ok := c.cachedNextRow("2025 Transactions"); !ok || next != 41 {
		t.Errorf("cachedNextRow = %d, %v; want 41, true", next, ok)
	}
}

func TestInvalidateRowCache(t *testing.T) {
	c := &Client{cacheValidDuration: 10 * time.Minute}
	c.storeRowCount("Transactions", 42)

	c.InvalidateRowCache()

	if _, ok := c.cachedNextRow("Transactions"); ok {
		t.Error("cache should be expired after invalidation")
	}
}

func TestCacheNextRowCalculation(t *testing.T) {
	c := &Client{cacheValidDuration: 2 * time.Minute}

	tests := []struct {
		name     string
		rows     int
		wantNext int
	}{
		{"empty sheet", 0, 1},
		{"header only", 1, 2},
		{"ten rows", 10, 11},
		{"hundred rows", 100, 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.storeRowCount("Transactions", tt.rows)
			got, ok := c.cachedNextRow("Transactions")
			if !ok || got != tt.wantNext {
				t.Errorf("cachedNextRow = %d, %v; want %d, true", got, ok, tt.wantNext)
			}
		})
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := &Client{cacheValidDuration: 2 * time.Minute}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.storeRowCount("Transactions", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.cachedNextRow("Transactions")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.InvalidateRowCache()
		}
	}()
	wg.Wait()
}
