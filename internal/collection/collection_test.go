package collection

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func bm(id string, offset time.Duration) domain.Bookmark {
	return domain.Bookmark{
		ID:        id,
		Owner:     "alice",
		Title:     id,
		URL:       "https://" + id + ".example.com",
		CreatedAt: base.Add(offset),
	}
}

func ids(records []domain.Bookmark) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func find(c *Collection, id string) (domain.Bookmark, bool) {
	for _, b := range c.Snapshot() {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Bookmark{}, false
}

func has(c *Collection, id string) bool {
	_, ok := find(c, id)
	return ok
}

func TestNew(t *testing.T) {
	c := New("alice")
	if c.Len() != 0 {
		t.Errorf("New() should start empty, got %d", c.Len())
	}
}

func TestReplaceAllSortsDescending(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("old", 0), bm("new", 2*time.Minute), bm("mid", time.Minute)})

	want := []string{"new", "mid", "old"}
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestReplaceAllOverwrites(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0)})
	c.ReplaceAll([]domain.Bookmark{bm("b", 0), bm("c", time.Second)})

	if has(c, "a") {
		t.Error("ReplaceAll() should discard previous records")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestReplaceAllDropsForeignAndDuplicates(t *testing.T) {
	c := New("alice")
	foreign := bm("x", 0)
	foreign.Owner = "bob"
	c.ReplaceAll([]domain.Bookmark{bm("a", 0), foreign, bm("a", time.Second)})

	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Snapshot() = %v, want [a]", got)
	}
}

func TestInsertIfAbsentIdempotent(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0)})

	if !c.InsertIfAbsent(bm("b", time.Minute)) {
		t.Fatal("first InsertIfAbsent() should change the collection")
	}
	once := c.Snapshot()

	if c.InsertIfAbsent(bm("b", time.Minute)) {
		t.Error("second InsertIfAbsent() should be a no-op")
	}
	if twice := c.Snapshot(); !reflect.DeepEqual(once, twice) {
		t.Errorf("InsertIfAbsent() not idempotent: %v then %v", ids(once), ids(twice))
	}
}

func TestInsertIfAbsentKeepsOrder(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("c", 2*time.Minute), bm("a", 0)})
	c.InsertIfAbsent(bm("b", time.Minute))
	c.InsertIfAbsent(bm("d", 3*time.Minute))

	want := []string{"d", "c", "b", "a"}
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestInsertIfAbsentTiesKeepArrivalOrder(t *testing.T) {
	c := New("alice")
	c.InsertIfAbsent(bm("first", 0))
	c.InsertIfAbsent(bm("second", 0))
	c.InsertIfAbsent(bm("third", 0))

	want := []string{"first", "second", "third"}
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestInsertIfAbsentRejectsForeignOwner(t *testing.T) {
	c := New("alice")
	foreign := bm("x", 0)
	foreign.Owner = "bob"

	if c.InsertIfAbsent(foreign) {
		t.Error("InsertIfAbsent() should refuse records of another owner")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestUpdateIfPresent(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0), bm("b", time.Minute)})

	updated := bm("a", 0)
	updated.Title = "renamed"
	if !c.UpdateIfPresent(updated) {
		t.Fatal("UpdateIfPresent() should change the collection")
	}
	got, ok := find(c, "a")
	if !ok || got.Title != "renamed" {
		t.Errorf("record a = %+v, want title renamed", got)
	}

	if c.UpdateIfPresent(bm("missing", 0)) {
		t.Error("UpdateIfPresent() should ignore absent records")
	}
	if has(c, "missing") {
		t.Error("UpdateIfPresent() must not insert")
	}
}

func TestUpdateIfPresentRepositions(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0), bm("b", time.Minute)})

	c.UpdateIfPresent(bm("a", 2*time.Minute))

	want := []string{"a", "b"}
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestRemoveByID(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0), bm("b", time.Minute)})

	if !c.RemoveByID("a") {
		t.Error("RemoveByID(a) should change the collection")
	}
	if has(c, "a") {
		t.Error("a should be gone")
	}
}

func TestRemoveByIDNonMember(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0)})
	before := c.Snapshot()

	if c.RemoveByID("missing") {
		t.Error("RemoveByID() of a non-member should report no change")
	}
	if after := c.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("RemoveByID() changed state: %v -> %v", ids(before), ids(after))
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := New("alice")
	c.ReplaceAll([]domain.Bookmark{bm("a", 0)})

	snap := c.Snapshot()
	snap[0].Title = "mutated"

	got, _ := find(c, "a")
	if got.Title == "mutated" {
		t.Error("Snapshot() must not alias internal state")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New("alice")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := string(rune('a' + i%26))
		go func() {
			defer wg.Done()
			c.InsertIfAbsent(bm(id, time.Duration(i)*time.Second))
		}()
		go func() {
			defer wg.Done()
			_ = c.Snapshot()
		}()
		go func() {
			defer wg.Done()
			c.RemoveByID(id)
		}()
	}
	wg.Wait()
}
