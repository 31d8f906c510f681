package hyperspace

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/hyperspacedb/hyperspace/internal/logger"
	hserrors "github.com/hyperspacedb/hyperspace/pkg/hyperspace/errors"
)

// Reserved extended attribute names. lockGenerationAttr holds a u64
// little-endian counter on every node file; generationAttr holds a u32
// instance generation on the base directory.
const (
	lockGenerationAttr = "user.lock.generation"
	generationAttr     = "user.generation"
)

// NormalizeName returns the canonical form of a node name: a leading slash
// is enforced and a single trailing slash is stripped.
func NormalizeName(name string) string {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if len(name) > 1 && strings.HasSuffix(name, "/") {
		name = name[:len(name)-1]
	}
	return name
}

// splitParent returns the parent node name and the child component of a
// normalized name, or ok=false for the root.
func splitParent(name string) (parent, child string, ok bool) {
	idx := strings.LastIndex(name, "/")
	if idx <= 0 {
		if idx == 0 && len(name) > 1 {
			return "/", name[1:], true
		}
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// OS open flags for backing entries, re-exported so the open path can
// compose them without importing unix directly.
const (
	openRDONLY = unix.O_RDONLY
	openRDWR   = unix.O_RDWR
	openCREAT  = unix.O_CREAT
	openEXCL   = unix.O_EXCL
)

// Store is the on-disk backing of the namespace: a local directory tree
// whose inodes carry extended attributes. It owns the base-directory
// descriptor and the advisory lock that guards against a second master.
type Store struct {
	baseDir    string
	baseFd     int
	generation uint32
}

// OpenStore opens the base directory, acquires the exclusive advisory lock
// on it (failing fast when another master holds it), and increments the
// persisted instance generation.
func OpenStore(baseDir string) (*Store, error) {
	baseDir = strings.TrimRight(baseDir, "/")
	if baseDir == "" {
		baseDir = "/"
	}

	fd, err := unix.Open(baseDir, unix.O_RDONLY, 0)
	if err != nil {
		return nil, hserrors.FromErrno(baseDir, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("base directory %q is locked by another process", baseDir)
		}
		return nil, hserrors.FromErrno(baseDir, err)
	}

	s := &Store{baseDir: baseDir, baseFd: fd}

	if err := s.bumpGeneration(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	logger.Info("opened namespace store",
		logger.KeyPath, baseDir, logger.KeyGen, s.generation)

	return s, nil
}

// bumpGeneration reads the base directory's generation attribute,
// initializes it to 1 when absent, and otherwise increments and persists it.
func (s *Store) bumpGeneration() error {
	buf := make([]byte, 4)
	n, err := unix.Getxattr(s.baseDir, generationAttr, buf)
	if err != nil {
		if hserrors.FromErrno(s.baseDir, err).Code != hserrors.ErrAttrNotFound {
			return hserrors.FromErrno(s.baseDir, err)
		}
		s.generation = 1
		binary.LittleEndian.PutUint32(buf, s.generation)
		if err := unix.Setxattr(s.baseDir, generationAttr, buf, unix.XATTR_CREATE); err != nil {
			return hserrors.FromErrno(s.baseDir, err)
		}
		return nil
	}
	if n != 4 {
		return hserrors.NewIOError(s.baseDir, fmt.Errorf("generation attribute has length %d, want 4", n))
	}

	s.generation = binary.LittleEndian.Uint32(buf) + 1
	binary.LittleEndian.PutUint32(buf, s.generation)
	if err := unix.Setxattr(s.baseDir, generationAttr, buf, unix.XATTR_REPLACE); err != nil {
		return hserrors.FromErrno(s.baseDir, err)
	}
	return nil
}

// Generation returns the instance generation persisted at startup.
func (s *Store) Generation() uint32 {
	return s.generation
}

// BaseDir returns the base directory path.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Abs translates a normalized node name to an absolute OS path under the
// base directory.
func (s *Store) Abs(name string) string {
	return s.baseDir + name
}

// Mkdir creates a directory for the given node name.
func (s *Store) Mkdir(name string) error {
	if err := unix.Mkdir(s.Abs(name), 0755); err != nil {
		return hserrors.FromErrno(name, err)
	}
	return nil
}

// Remove deletes the backing entry for the given node name: rmdir for
// directories, unlink otherwise.
func (s *Store) Remove(name string) error {
	abs := s.Abs(name)

	var st unix.Stat_t
	if err := unix.Stat(abs, &st); err != nil {
		return hserrors.FromErrno(name, err)
	}

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		if err := unix.Rmdir(abs); err != nil {
			return hserrors.FromErrno(name, err)
		}
		return nil
	}
	if err := unix.Unlink(abs); err != nil {
		return hserrors.FromErrno(name, err)
	}
	return nil
}

// Unlink removes the backing file without the directory check. Used for
// ephemeral nodes, whose inode survives through the open descriptor.
func (s *Store) Unlink(name string) error {
	if err := unix.Unlink(s.Abs(name)); err != nil {
		return hserrors.FromErrno(name, err)
	}
	return nil
}

// Stat probes the backing entry. existed is false (with a nil error) when
// the entry does not exist.
func (s *Store) Stat(name string) (existed, isDir bool, err error) {
	var st unix.Stat_t
	if err := unix.Stat(s.Abs(name), &st); err != nil {
		if err == unix.ENOENT {
			return false, false, nil
		}
		return false, false, hserrors.FromErrno(name, err)
	}
	return true, st.Mode&unix.S_IFMT == unix.S_IFDIR, nil
}

// Exists reports whether the backing entry for the node name exists.
func (s *Store) Exists(name string) (bool, error) {
	existed, _, err := s.Stat(name)
	return existed, err
}

// OpenEntry opens the backing file or directory with the given OS flags and
// returns the descriptor.
func (s *Store) OpenEntry(name string, oflags int) (int, error) {
	fd, err := unix.Open(s.Abs(name), oflags, 0644)
	if err != nil {
		return -1, hserrors.FromErrno(name, err)
	}
	return fd, nil
}

// CloseEntry closes a descriptor returned by OpenEntry.
func (s *Store) CloseEntry(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// ReadLockGeneration reads the lock.generation attribute from an open
// descriptor. found is false (with a nil error) when the attribute is not
// present yet.
func (s *Store) ReadLockGeneration(name string, fd int) (gen uint64, found bool, err error) {
	buf := make([]byte, 8)
	n, err := unix.Fgetxattr(fd, lockGenerationAttr, buf)
	if err != nil {
		if hserrors.FromErrno(name, err).Code == hserrors.ErrAttrNotFound {
			return 0, false, nil
		}
		return 0, false, hserrors.FromErrno(name, err)
	}
	if n != 8 {
		return 0, false, hserrors.NewIOError(name, fmt.Errorf("lock.generation attribute has length %d, want 8", n))
	}
	return binary.LittleEndian.Uint64(buf), true, nil
}

// WriteLockGeneration persists the lock generation to the backing inode.
// Every grant calls this before the granting response is sent.
func (s *Store) WriteLockGeneration(name string, fd int, gen uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, gen)
	if err := unix.Fsetxattr(fd, lockGenerationAttr, buf, 0); err != nil {
		return hserrors.FromErrno(name, err)
	}
	return nil
}

// GetAttr reads an extended attribute from an open descriptor. Attribute
// names are arbitrary byte strings; values are opaque.
func (s *Store) GetAttr(name string, fd int, attr string) ([]byte, error) {
	for {
		sz, err := unix.Fgetxattr(fd, userAttr(attr), nil)
		if err != nil {
			return nil, hserrors.FromErrno(name, err)
		}
		buf := make([]byte, sz)
		n, err := unix.Fgetxattr(fd, userAttr(attr), buf)
		if err == unix.ERANGE {
			// Grew between the probe and the read; retry.
			continue
		}
		if err != nil {
			return nil, hserrors.FromErrno(name, err)
		}
		return buf[:n], nil
	}
}

// SetAttr writes an extended attribute on an open descriptor.
func (s *Store) SetAttr(name string, fd int, attr string, value []byte) error {
	if err := unix.Fsetxattr(fd, userAttr(attr), value, 0); err != nil {
		return hserrors.FromErrno(name, err)
	}
	return nil
}

// DelAttr removes an extended attribute from an open descriptor.
func (s *Store) DelAttr(name string, fd int, attr string) error {
	if err := unix.Fremovexattr(fd, userAttr(attr)); err != nil {
		return hserrors.FromErrno(name, err)
	}
	return nil
}

// userAttr prefixes client attribute names into the user namespace the
// backing filesystem accepts for unprivileged processes.
func userAttr(attr string) string {
	if strings.HasPrefix(attr, "user.") {
		return attr
	}
	return "user." + attr
}

// Close releases the base descriptor; the advisory lock falls with it.
func (s *Store) Close() error {
	if s.baseFd < 0 {
		return nil
	}
	err := unix.Close(s.baseFd)
	s.baseFd = -1
	return err
}

// ValidateName reports whether the node name is well formed: absolute, no
// trailing slash, no empty or dot components.
func ValidateName(name string) error {
	if name == "" || name[0] != '/' {
		return hserrors.NewBadPathnameError(name, nil)
	}
	if len(name) > 1 && strings.HasSuffix(name, "/") {
		return hserrors.NewBadPathnameError(name, nil)
	}
	cleaned := path.Clean(name)
	if cleaned != name {
		return hserrors.NewBadPathnameError(name, nil)
	}
	return nil
}
