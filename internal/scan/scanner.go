// Package scan walks a directory tree, fingerprints eligible images and hands
// completed duplicate groups to a consumer through a queue.
package scan

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lyallcooper/dupdeleter/internal/fingerprint"
	"github.com/lyallcooper/dupdeleter/internal/forest"
	"github.com/lyallcooper/dupdeleter/internal/types"
)

// DefaultExtensions are the file suffixes scanned when none are configured
var DefaultExtensions = []string{".jpg", ".png", ".gif", ".tiff"}

var errNotDirectory = errors.New("not a directory")

// InvalidRootError reports a scan root that is missing, unreadable or not a directory
type InvalidRootError struct {
	Path string
	Err  error
}

func (e *InvalidRootError) Error() string {
	return "invalid scan root " + e.Path + ": " + e.Err.Error()
}

func (e *InvalidRootError) Unwrap() error { return e.Err }

// Options configures one scan
type Options struct {
	Root       string
	Strategy   fingerprint.Strategy
	Extensions []string // case-sensitive suffixes, DefaultExtensions if empty
	Workers    int      // fingerprint workers, GOMAXPROCS if <= 0
}

// Stats summarises a finished scan
type Stats struct {
	DirsVisited  int64
	FilesSeen    int64 // eligible files
	FilesScanned int64 // eligible files fingerprinted successfully
	Warnings     int64 // unreadable files, undecodable images, skipped directories
	GroupsFound  int64
}

type job struct {
	seq  int
	path string
}

type outcome struct {
	seq  int
	path string
	fp   fingerprint.Fingerprint
	err  error
}

// Start validates the root and begins scanning in the background.
// Only an invalid root is reported synchronously.
func Start(ctx context.Context, opts Options) (*Handle, error) {
	root := filepath.Clean(opts.Root)
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	if opts.Strategy == nil {
		return nil, errors.New("scan: no fingerprint strategy")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	opts.Root = root

	scanCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)

	go func() {
		stats, err := run(scanCtx, opts, h)
		h.finish(stats, err)
	}()

	return h, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return &InvalidRootError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return &InvalidRootError{Path: root, Err: errNotDirectory}
	}
	f, err := os.Open(root)
	if err != nil {
		return &InvalidRootError{Path: root, Err: err}
	}
	f.Close()
	return nil
}

// MatchExtension reports whether name ends with one of exts
func MatchExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if ext != "" && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// run executes the walk -> fingerprint -> group pipeline. Groups are pushed
// onto the handle's queue once the walk ends, in the order their buckets
// reached two members.
func run(ctx context.Context, opts Options, h *Handle) (*Stats, error) {
	var stats Stats
	jobs := make(chan job, opts.Workers*2)
	outcomes := make(chan outcome, opts.Workers*2)

	g, gctx := errgroup.WithContext(ctx)

	// Walker
	g.Go(func() error {
		defer close(jobs)
		seq := 0
		return filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				atomic.AddInt64(&stats.Warnings, 1)
				log.Warn().Err(err).Str("path", path).Msg("scanner: skipping unreadable path")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				atomic.AddInt64(&stats.DirsVisited, 1)
				h.report(path, &stats)
				return nil
			}
			if !d.Type().IsRegular() || !MatchExtension(d.Name(), opts.Extensions) {
				return nil
			}

			atomic.AddInt64(&stats.FilesSeen, 1)
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- job{seq: seq, path: path}:
				seq++
			}
			return nil
		})
	})

	// Fingerprint workers
	workers, wctx := errgroup.WithContext(gctx)
	for i := 0; i < opts.Workers; i++ {
		workers.Go(func() error {
			for j := range jobs {
				fp, err := opts.Strategy.Fingerprint(j.path)
				select {
				case <-wctx.Done():
					return wctx.Err()
				case outcomes <- outcome{seq: j.seq, path: j.path, fp: fp, err: err}:
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(outcomes)
		return workers.Wait()
	})

	// Collector: restore walk order so first-seen files become parents
	grp := newGrouper(opts.Strategy)
	g.Go(func() error {
		pending := make(map[int]outcome)
		next := 0
		for o := range outcomes {
			pending[o.seq] = o
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				collect(grp, cur, &stats)
				h.report(cur.path, &stats)
			}
		}
		return nil
	})

	// Cancellation and timeouts keep the groups found so far
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return &stats, err
	}

	for _, dg := range grp.groups() {
		h.queue.Push(dg)
	}
	return &stats, err
}

func collect(grp *grouper, o outcome, stats *Stats) {
	if o.err != nil {
		atomic.AddInt64(&stats.Warnings, 1)
		var decErr *fingerprint.DecodeError
		if errors.As(o.err, &decErr) {
			log.Warn().Err(decErr.Err).Str("path", o.path).Msg("scanner: skipping undecodable image")
		} else {
			log.Warn().Err(o.err).Str("path", o.path).Msg("scanner: skipping unreadable file")
		}
		return
	}

	atomic.AddInt64(&stats.FilesScanned, 1)
	if grp.add(forest.NewImageRef(o.path), o.fp) {
		atomic.AddInt64(&stats.GroupsFound, 1)
	}
}

// snapshot copies counters into a progress value
func (s *Stats) snapshot(current, status string, done bool) types.ScanProgress {
	return types.ScanProgress{
		CurrentPath:  current,
		FilesScanned: atomic.LoadInt64(&s.FilesScanned),
		GroupsFound:  atomic.LoadInt64(&s.GroupsFound),
		Warnings:     atomic.LoadInt64(&s.Warnings),
		Status:       status,
		Done:         done,
	}
}
