// Package sequence is the content-addressed store for raw sequence strings.
// Sequences are keyed by the md5 of their content and are never deleted.
package sequence

import (
	"context"
	"log/slog"

	"genestore/internal/errors"
	"genestore/internal/fileio"
	"genestore/internal/model"
	"genestore/internal/paths"
)

// Store reads and writes sequences under <root>/sequences.
type Store struct {
	paths  *paths.Resolver
	verify bool
	logger *slog.Logger
}

// New creates a sequence store. With verifyContent set, Write rejects a
// sequence whose md5 differs from the hash it is written under.
func New(resolver *paths.Resolver, verifyContent bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{paths: resolver, verify: verifyContent, logger: logger}
}

// Get returns the sequence stored under hash. hash may be any pseudo-md5:
// mixed case, optionally suffixed with [start:end] to read a byte range.
// An unwritten hash yields "" and no error.
func (s *Store) Get(ctx context.Context, hash string) (string, error) {
	md5, start, end, hasRange, ok := model.ParsePseudoMD5(hash)
	if !ok {
		return "", errors.Newf(errors.InvalidModel, "invalid md5 %q", hash)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := fileio.ReadFile(s.paths.SequencePath(md5))
	if errors.IsCode(err, errors.DoesNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	seq := string(data)
	if hasRange {
		start = min(start, len(seq))
		end = min(end, len(seq))
		seq = seq[start:end]
	}
	return seq, nil
}

// Exists reports whether a sequence has been written under hash.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	md5, _, _, _, ok := model.ParsePseudoMD5(hash)
	if !ok {
		return false, errors.Newf(errors.InvalidModel, "invalid md5 %q", hash)
	}
	return fileio.Exists(s.paths.SequencePath(md5)), nil
}

// Write stores sequence under hash, which must be canonical lower-case md5.
// Writing the same hash again overwrites it.
func (s *Store) Write(ctx context.Context, hash, sequence string) error {
	if !model.IsStrictMD5(hash) {
		return errors.Newf(errors.InvalidModel, "invalid md5 %q", hash)
	}
	if s.verify {
		if got := model.MD5Hex(sequence); got != hash {
			return errors.Newf(errors.InvalidModel, "sequence md5 %s does not match %s", got, hash)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fileio.WriteFile(s.paths.SequencePath(hash), []byte(sequence)); err != nil {
		return err
	}
	s.logger.Debug("Sequence written", "md5", hash, "length", len(sequence))
	return nil
}

// Delete is refused: sequences may be shared by any number of blocks.
func (s *Store) Delete(ctx context.Context, hash string) error {
	return errors.New(errors.NotAllowed, "sequences cannot be deleted", nil)
}
