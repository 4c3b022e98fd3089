package jsegment

import (
	"container/list"
	"os"
	"sync"
)

// ReadCache is a thread-safe LRU cache of open read-only segment file
// handles, keyed by segment path, bounding the number of open file
// descriptors kept around for copy-back and page-read path reads.
type ReadCache struct {
	mu       sync.Mutex
	capacity int
	lruList  *list.List
	items    map[string]*list.Element
}

type readCacheItem struct {
	path string
	file *os.File
}

// NewReadCache creates a cache holding up to capacity open file handles.
func NewReadCache(capacity int) *ReadCache {
	if capacity <= 0 {
		capacity = 64
	}
	return &ReadCache{
		capacity: capacity,
		lruList:  list.New(),
		items:    make(map[string]*list.Element),
	}
}

// ReadAt reads length bytes at offset from the segment at path, opening
// and caching the file handle if it is not already open.
func (c *ReadCache) ReadAt(path string, offset int64, length int) ([]byte, error) {
	f, err := c.getOrOpen(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if n == length {
		return buf, nil
	}
	if err != nil {
		return buf[:n], err
	}
	return buf[:n], nil
}

func (c *ReadCache) getOrOpen(path string) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[path]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*readCacheItem).file, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if c.lruList.Len() >= c.capacity {
		c.evictLocked()
	}

	item := &readCacheItem{path: path, file: f}
	elem := c.lruList.PushFront(item)
	c.items[path] = elem
	return f, nil
}

func (c *ReadCache) evictLocked() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.lruList.Remove(elem)
	item := elem.Value.(*readCacheItem)
	delete(c.items, item.path)
	_ = item.file.Close()
}

// Forget closes and evicts path's cached handle, if any. Used after a
// segment file is deleted so a stale descriptor is never reused.
func (c *ReadCache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[path]
	if !ok {
		return
	}
	c.lruList.Remove(elem)
	delete(c.items, path)
	_ = elem.Value.(*readCacheItem).file.Close()
}

// Close closes every cached file handle.
func (c *ReadCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.lruList.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*readCacheItem).file.Close()
	}
	c.lruList.Init()
	c.items = make(map[string]*list.Element)
	return nil
}
