package repo

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	lockfile "github.com/ipfs/go-fs-lock"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/memoio/go-mefs-pre/config"
	"github.com/memoio/go-mefs-pre/lib/backend/kv"
	logging "github.com/memoio/go-mefs-pre/lib/log"
	"github.com/memoio/go-mefs-pre/lib/types/store"
	"github.com/memoio/go-mefs-pre/submodule/wallet"
)

const (
	configFilename     = "config.json"
	tempConfigFilename = ".config.json.temp"
	lockFile           = "repo.lock"

	keyStorePathPrefix = "keystore" // $PrePath/keystore
	metaPathPrefix     = "meta"     // $PrePath/meta
)

var logger = logging.Logger("repo")

// FSRepo is a repo implementation backed by a filesystem.
type FSRepo struct {
	// Path to the repo root directory.
	path string

	// lk protects the config file
	lk  sync.RWMutex
	cfg *config.Config

	wallet *wallet.Wallet
	metaDs store.KVStore

	// lockfile is the file system lock to prevent others from opening the same repo.
	lockfile io.Closer
}

var _ Repo = (*FSRepo)(nil)

// NewFSRepo opens the repo at dir, creating it from cfg when dir holds no
// config yet. The password unlocks the wallet.
func NewFSRepo(dir string, cfg *config.Config, password string) (*FSRepo, error) {
	repoPath, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}

	if repoPath == "" { // path contained no separator
		repoPath = "./"
	}

	if err := ensureWritableDirectory(repoPath); err != nil {
		return nil, xerrors.Errorf("no writable directory %w", err)
	}

	hasConfig, err := hasConfig(repoPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to check for repo config %w", err)
	}

	if !hasConfig {
		if cfg != nil {
			logger.Info("initializing repo at: ", repoPath)
			if err = initFSRepo(repoPath, cfg); err != nil {
				return nil, err
			}
		} else {
			return nil, xerrors.Errorf("no repo found at %s; run: 'init [--repo=%s]'", repoPath, repoPath)
		}
	}

	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to stat repo %s %w", repoPath, err)
	}

	// Resolve path if it's a symlink.
	var actualPath string
	if info.IsDir() {
		actualPath = repoPath
	} else {
		actualPath, err = os.Readlink(repoPath)
		if err != nil {
			return nil, xerrors.Errorf("failed to follow repo symlink %s %w", repoPath, err)
		}
	}

	r := &FSRepo{path: actualPath}

	r.lockfile, err = lockfile.Lock(r.path, lockFile)
	if err != nil {
		return nil, xerrors.Errorf("failed to take repo lock %w", err)
	}

	if err := r.loadFromDisk(password); err != nil {
		_ = r.lockfile.Close()
		return nil, err
	}

	logger.Info("open repo at:", repoPath)

	return r, nil
}

func initFSRepo(dir string, cfg *config.Config) error {
	if err := initConfig(dir, cfg); err != nil {
		return xerrors.Errorf("initializing config file failed %w", err)
	}

	kstorePath := filepath.Join(dir, keyStorePathPrefix)
	if err := os.MkdirAll(kstorePath, 0700); err != nil {
		return xerrors.Errorf("initializing keystore directory failed %w", err)
	}

	return nil
}

func (r *FSRepo) loadFromDisk(password string) error {
	if err := r.loadConfig(); err != nil {
		return xerrors.Errorf("failed to load config file %w", err)
	}

	if err := r.openWallet(password); err != nil {
		return xerrors.Errorf("failed to open keystore %w", err)
	}

	if err := r.openMetaStore(); err != nil {
		return xerrors.Errorf("failed to open meta store %w", err)
	}

	return nil
}

func (r *FSRepo) Config() *config.Config {
	r.lk.RLock()
	defer r.lk.RUnlock()

	return r.cfg
}

// ReplaceConfig replaces the current config with the newly passed in one.
func (r *FSRepo) ReplaceConfig(cfg *config.Config) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	r.cfg = cfg
	tmp := filepath.Join(r.path, tempConfigFilename)
	err := os.RemoveAll(tmp)
	if err != nil {
		return err
	}
	err = r.cfg.WriteFile(tmp)
	if err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(r.path, configFilename))
}

func (r *FSRepo) Wallet() *wallet.Wallet {
	return r.wallet
}

func (r *FSRepo) MetaStore() store.KVStore {
	return r.metaDs
}

func (r *FSRepo) Path() (string, error) {
	return r.path, nil
}

// Close closes the repo.
func (r *FSRepo) Close() error {
	if err := r.metaDs.Close(); err != nil {
		return xerrors.Errorf("failed to close meta datastore %w", err)
	}

	return r.lockfile.Close()
}

func hasConfig(p string) (bool, error) {
	configPath := filepath.Join(p, configFilename)

	_, err := os.Lstat(configPath)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func (r *FSRepo) loadConfig() error {
	configFile := filepath.Join(r.path, configFilename)

	cfg, err := config.ReadFile(configFile)
	if err != nil {
		return xerrors.Errorf("failed to read config file at %q %w", configFile, err)
	}

	r.cfg = cfg
	return nil
}

func (r *FSRepo) resolve(p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.path, p)
}

func (r *FSRepo) openWallet(password string) error {
	w, err := wallet.New(r.resolve(r.cfg.Data.KeyPath, keyStorePathPrefix), password)
	if err != nil {
		return err
	}

	r.wallet = w

	return nil
}

func (r *FSRepo) openMetaStore() error {
	opt := kv.DefaultOptions

	ds, err := kv.NewBadgerStore(r.resolve(r.cfg.Data.MetaPath, metaPathPrefix), &opt)
	if err != nil {
		return err
	}

	r.metaDs = ds

	return nil
}

func initConfig(p string, cfg *config.Config) error {
	configFile := filepath.Join(p, configFilename)
	exists, err := fileExists(configFile)
	if err != nil {
		return xerrors.Errorf("failed to inspect config file %w", err)
	} else if exists {
		return xerrors.Errorf("config file already exists: %s", configFile)
	}

	return cfg.WriteFile(configFile)
}

// Ensures that path points to a read/writable directory, creating it if necessary.
func ensureWritableDirectory(path string) error {
	// Attempt to create the requested directory, accepting that something might already be there.
	err := os.Mkdir(path, 0775)

	if err == nil {
		return nil // Skip the checks below, we just created it.
	} else if !os.IsExist(err) {
		return xerrors.Errorf("failed to create directory %s %w", path, err)
	}

	// Inspect existing directory.
	stat, err := os.Stat(path)
	if err != nil {
		return xerrors.Errorf("failed to stat path %s %w", path, err)
	}
	if !stat.IsDir() {
		return xerrors.Errorf("%s is not a directory", path)
	}
	if (stat.Mode() & 0600) != 0600 {
		return xerrors.Errorf("insufficient permissions for path %s, got %04o need %04o", path, stat.Mode(), 0600)
	}
	return nil
}

// Exists reports whether repoPath already holds a config.
func Exists(repoPath string) (bool, error) {
	p, err := homedir.Expand(repoPath)
	if err != nil {
		return false, err
	}
	return hasConfig(p)
}

func fileExists(file string) (bool, error) {
	_, err := os.Stat(file)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
