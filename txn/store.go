package txn

import (
	"github.com/zqlite/zqlite-go/pager"
)

// Store is a transaction's view of the page file: dirty pages live in a
// memory overlay, everything else reads through to the pager. Frees are
// deferred until commit so a rollback never loses live pages.
type Store struct {
	base *pager.Pager

	pages     map[uint32][]byte
	allocated []uint32
	freed     []uint32
}

func newStore(base *pager.Pager) *Store {
	return &Store{base: base, pages: make(map[uint32][]byte)}
}

func (s *Store) Allocate() (uint32, error) {
	pageNo, err := s.base.Allocate()
	if err != nil {
		return 0, err
	}
	s.allocated = append(s.allocated, pageNo)
	return pageNo, nil
}

func (s *Store) Read(pageNo uint32) ([]byte, error) {
	if payload, ok := s.pages[pageNo]; ok {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	return s.base.Read(pageNo)
}

func (s *Store) Write(pageNo uint32, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.pages[pageNo] = buf
	return nil
}

func (s *Store) Free(pageNo uint32) error {
	delete(s.pages, pageNo)
	s.freed = append(s.freed, pageNo)
	return nil
}

// Dirty reports how many pages the overlay holds.
func (s *Store) Dirty() int {
	return len(s.pages)
}

// flush writes the overlay into the pager and applies deferred frees.
func (s *Store) flush() error {
	for pageNo, payload := range s.pages {
		if err := s.base.Write(pageNo, payload); err != nil {
			return err
		}
	}
	for _, pageNo := range s.freed {
		if err := s.base.Free(pageNo); err != nil {
			return err
		}
	}
	return nil
}

// discard returns the transaction's fresh allocations to the free list.
func (s *Store) discard() error {
	for _, pageNo := range s.allocated {
		if err := s.base.Free(pageNo); err != nil {
			return err
		}
	}
	s.pages = make(map[uint32][]byte)
	s.allocated = nil
	s.freed = nil
	return nil
}
