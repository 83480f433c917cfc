package sdstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"go.etcd.io/bbolt"
)

type Mode uint8

const (
	ModeCreate Mode = iota + 1
	ModeRead
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeRead:
		return "read"
	case ModeEdit:
		return "edit"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

type Options struct {
	Logger *slog.Logger
	// LockTimeout bounds the wait for another handle to release the file.
	LockTimeout time.Duration
	IsTesting   bool
	MmapSize    int
}

const DefaultLockTimeout = time.Second

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.LockTimeout == 0 {
		o.LockTimeout = DefaultLockTimeout
	}
}

func (o *Options) boltOptions(readOnly bool) *bbolt.Options {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = o.LockTimeout
	bopt.ReadOnly = readOnly
	if o.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if o.MmapSize != 0 {
		bopt.InitialMmapSize = o.MmapSize
	}
	return bopt
}

// File is an open SD container. A File is not safe for concurrent use.
type File struct {
	path     string
	mode     Mode
	logger   *slog.Logger
	db       *bbolt.DB
	types    *Registry
	elements []*Element
	nextID   uint64
	removed  []uint64
	changed  bool
	closed   bool

	loadedTypes int
}

// Create makes a new container at path, which must not exist yet.
func Create(path string, opt Options) (*File, error) {
	opt.setDefaults()
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("sdstore: creating %s: %w", path, ErrExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("sdstore: creating %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0666, opt.boltOptions(false))
	if err != nil {
		return nil, fmt.Errorf("sdstore: creating %s: %w", path, err)
	}
	f := newFile(path, ModeCreate, db, opt)
	err = f.commit()
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sdstore: creating %s: %w", path, err)
	}
	f.logger.LogAttrs(context.Background(), slog.LevelInfo, "sdstore: created", slog.String("file", path))
	return f, nil
}

// Open opens an existing container read-only.
func Open(path string, opt Options) (*File, error) {
	return open(path, ModeRead, opt)
}

// Edit opens an existing container for reading, modification and appends.
func Edit(path string, opt Options) (*File, error) {
	return open(path, ModeEdit, opt)
}

func open(path string, mode Mode, opt Options) (*File, error) {
	opt.setDefaults()
	stat, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("sdstore: opening %s: %w: %w", path, ErrNotFound, err)
	} else if err != nil {
		return nil, fmt.Errorf("sdstore: opening %s: %w", path, err)
	}
	if stat.IsDir() || stat.Size() == 0 {
		return nil, fmt.Errorf("sdstore: opening %s: %w", path, dataErrf(nil, 0, nil, "not a container file"))
	}

	db, err := bbolt.Open(path, 0666, opt.boltOptions(mode == ModeRead))
	if errors.Is(err, bbolt.ErrTimeout) || errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("sdstore: opening %s: %w", path, err)
	} else if err != nil {
		return nil, fmt.Errorf("sdstore: opening %s: %w", path, dataErrf(nil, 0, err, "not a container file"))
	}

	f := newFile(path, mode, db, opt)
	start := time.Now()
	err = db.View(f.load)
	if err != nil {
		db.Close()
		f.logger.LogAttrs(context.Background(), slog.LevelError, "sdstore: load failed", slog.String("file", path), slog.Any("err", err))
		return nil, fmt.Errorf("sdstore: opening %s: %w", path, err)
	}
	f.types.readOnly = mode == ModeRead
	f.loadedTypes = len(f.types.order)
	f.logger.LogAttrs(context.Background(), slog.LevelDebug, "sdstore: loaded",
		slog.String("file", path),
		slog.String("mode", mode.String()),
		slog.Int("types", len(f.types.order)),
		slog.Int("elements", f.countElements()),
		slog.Duration("elapsed", time.Since(start)))
	return f, nil
}

func newFile(path string, mode Mode, db *bbolt.DB, opt Options) *File {
	return &File{
		path:   path,
		mode:   mode,
		logger: opt.Logger,
		db:     db,
		types:  newRegistry(),
	}
}

func (f *File) Path() string { return f.path }
func (f *File) Mode() Mode   { return f.mode }

// Types returns the registry of named types used by the file.
func (f *File) Types() *Registry {
	return f.types
}

// Elements returns the top-level elements in insertion order.
func (f *File) Elements() []*Element {
	return slices.Clone(f.elements)
}

// FindElement returns the top-level element called name, or nil.
func (f *File) FindElement(name string) *Element {
	return findElement(f.elements, name)
}

func (f *File) AddElement(name string, typ Type, kind Kind) (*Element, error) {
	if err := f.checkWritable(); err != nil {
		return nil, err
	}
	return f.addElement(nil, &f.elements, name, typ, kind)
}

// RemoveElement detaches a top-level element and its subtree. Their
// samples are deleted from the container on Close.
func (f *File) RemoveElement(e *Element) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	return f.removeElement(nil, &f.elements, e)
}

// Close commits all changes made through a create or edit handle and
// releases the container.
func (f *File) Close() error {
	if f.closed {
		return fmt.Errorf("sdstore: closing %s: %w", f.path, ErrClosed)
	}
	f.closed = true
	f.types.readOnly = true

	var err error
	if f.mode != ModeRead && f.needsCommit() {
		start := time.Now()
		err = f.commit()
		if err != nil {
			f.logger.LogAttrs(context.Background(), slog.LevelError, "sdstore: commit failed", slog.String("file", f.path), slog.Any("err", err))
			err = fmt.Errorf("sdstore: committing %s: %w", f.path, err)
		} else {
			f.logger.LogAttrs(context.Background(), slog.LevelInfo, "sdstore: committed",
				slog.String("file", f.path),
				slog.Int("elements", f.countElements()),
				slog.Int("removed", len(f.removed)),
				slog.Duration("elapsed", time.Since(start)))
		}
	}
	if cerr := f.db.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("sdstore: closing %s: %w", f.path, cerr)
	}
	return err
}

func (f *File) checkWritable() error {
	if f.closed {
		return ErrClosed
	}
	if f.mode == ModeRead {
		return ErrReadOnly
	}
	return nil
}

func (f *File) structureChanged() {
	f.changed = true
}

func (f *File) needsCommit() bool {
	if f.changed || len(f.removed) > 0 || len(f.types.order) != f.loadedTypes {
		return true
	}
	dirty := false
	f.walk(func(e *Element, _ int) {
		dirty = dirty || e.seq.dirty
	})
	return dirty
}

// walk visits all elements in pre-order.
func (f *File) walk(fn func(e *Element, depth int)) {
	for _, e := range f.elements {
		e.walk(fn, 0)
	}
}

func (f *File) countElements() int {
	var n int
	f.walk(func(*Element, int) { n++ })
	return n
}

func (f *File) String() string {
	return f.Dump(DumpAll)
}
