// Package identity manages the pseudonymous signing identity of an installation.
//
// An identity is an Ed25519 keypair created once and persisted locally. The
// public key, hex encoded, is the actor id attached to every write; the handle
// is a short label derived from it.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf16"
)

// ErrKeyGeneration means the asymmetric key primitive is unavailable.
var ErrKeyGeneration = errors.New("identity: key generation unavailable")

// Identity is the single signing identity of an installation.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Handle     string
}

// PublicKeyHex returns the textual encoding of the public key.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.PublicKey)
}

// Sign returns the hex encoded Ed25519 signature of msg.
func (id *Identity) Sign(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(id.PrivateKey, msg))
}

// VerifySignature checks a hex signature made by the hex public key.
func VerifySignature(publicKeyHex string, msg []byte, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// DeriveHandle maps a public key's textual encoding to "User_NNNN".
//
// The hash is h = h*31 + c over UTF-16 code units with 32-bit signed
// wraparound. It is a label, not a fingerprint: collisions are expected.
func DeriveHandle(publicKey string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(publicKey)) {
		h = h*31 + int32(c)
	}
	n := int64(h)
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("User_%04d", n%10000)
}

// stored mirrors the persisted JSON layout.
type stored struct {
	KeyPair struct {
		PublicKey  string `json:"publicKey"`
		PrivateKey string `json:"privateKey"`
	} `json:"keyPair"`
	UserHandle string `json:"userHandle"`
}

// Manager loads or creates the identity exactly once per process and hands
// the same *Identity to every caller.
type Manager struct {
	ks     Keystore
	logger *slog.Logger
	keygen func() (ed25519.PublicKey, ed25519.PrivateKey, error)

	mu      sync.Mutex
	current *Identity
}

// NewManager creates a manager over ks.
func NewManager(ks Keystore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		ks:     ks,
		logger: logger,
		keygen: func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
			return ed25519.GenerateKey(rand.Reader)
		},
	}
}

// GetOrCreate returns the persisted identity, generating and saving a new one
// when none exists. A corrupt identity file is treated as absent: a new
// identity replaces it and the previous pseudonymous history is lost.
func (m *Manager) GetOrCreate() (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current, nil
	}

	data, err := m.ks.Load()
	switch {
	case err == nil:
		id, decodeErr := decode(data)
		if decodeErr == nil {
			m.current = id
			return id, nil
		}
		m.logger.Warn("identity: stored identity is corrupt, generating a new one",
			slog.String("error", decodeErr.Error()))
	case errors.Is(err, os.ErrNotExist):
	default:
		m.logger.Warn("identity: stored identity unreadable, generating a new one",
			slog.String("error", err.Error()))
	}

	id, err := m.generate()
	if err != nil {
		return nil, err
	}
	raw, err := encode(id)
	if err != nil {
		return nil, err
	}
	if err := m.ks.Save(raw); err != nil {
		return nil, err
	}
	m.logger.Info("identity: created", slog.String("handle", id.Handle))
	m.current = id
	return id, nil
}

// Reset destroys the persisted identity. The next GetOrCreate generates a new one.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return m.ks.Delete()
}

func (m *Manager) generate() (*Identity, error) {
	pub, priv, err := m.keygen()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &Identity{
		PublicKey:  pub,
		PrivateKey: priv,
		Handle:     DeriveHandle(hex.EncodeToString(pub)),
	}, nil
}

func encode(id *Identity) ([]byte, error) {
	pkcs8, err := x509.MarshalPKCS8PrivateKey(id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal private key: %w", err)
	}
	var s stored
	s.KeyPair.PublicKey = id.PublicKeyHex()
	s.KeyPair.PrivateKey = hex.EncodeToString(pkcs8)
	s.UserHandle = id.Handle
	return json.Marshal(&s)
}

func decode(data []byte) (*Identity, error) {
	var s stored
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("identity: parse: %w", err)
	}
	if s.KeyPair.PublicKey == "" || s.KeyPair.PrivateKey == "" {
		return nil, errors.New("identity: missing key fields")
	}
	pub, err := hex.DecodeString(s.KeyPair.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("identity: malformed public key")
	}
	der, err := hex.DecodeString(s.KeyPair.PrivateKey)
	if err != nil {
		return nil, errors.New("identity: malformed private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("identity: private key is not ed25519")
	}
	handle := s.UserHandle
	if handle == "" {
		handle = DeriveHandle(s.KeyPair.PublicKey)
	}
	return &Identity{PublicKey: ed25519.PublicKey(pub), PrivateKey: priv, Handle: handle}, nil
}
