package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/xerrors"
	"lukechampine.com/frand"
)

const (
	keyHeaderKDF  = "scrypt"
	latestVersion = 3

	// StandardScryptN is the N parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptN = 1 << 18
	// StandardScryptP is the P parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptP = 1

	// LightScryptN is the N parameter of Scrypt encryption algorithm, using 4MB
	// memory and taking approximately 100ms CPU time on a modern processor.
	LightScryptN = 1 << 12
	// LightScryptP is the P parameter of Scrypt encryption algorithm, using 4MB
	// memory and taking approximately 100ms CPU time on a modern processor.
	LightScryptP = 6

	scryptR     = 8
	scryptDKLen = 32
)

var (
	// ErrDecrypt before decrypt privatekey, we compare mac, if not equal, use ErrDecrypt
	ErrDecrypt = errors.New("could not decrypt key with given passphrase")
)

// Key is a secret in plaintext together with the address it belongs to.
type Key struct {
	Id uuid.UUID

	Kind Kind
	// printable public key, also the file name
	Address string
	Secret  []byte
}

type cipherparamsJSON struct {
	IV string `json:"iv"`
}

type CryptoJSON struct {
	Cipher       string                 `json:"cipher"`
	CipherText   string                 `json:"ciphertext"`
	CipherParams cipherparamsJSON       `json:"cipherparams"`
	KDF          string                 `json:"kdf"`
	KDFParams    map[string]interface{} `json:"kdfparams"`
	MAC          string                 `json:"mac"`
}

type encryptedKeyJSONV3 struct {
	Address string     `json:"address"`
	Crypto  CryptoJSON `json:"crypto"`
	Kind    Kind       `json:"kind"`
	Id      string     `json:"id"`
	Version int        `json:"version"`
}

func newKey(kind Kind, secret []byte, address string) (*Key, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	return &Key{
		Id:      id,
		Kind:    kind,
		Address: address,
		Secret:  secret,
	}, nil
}

// encryptKey encrypts a key using the specified scrypt parameters into a json
// blob that can be decrypted later on.
func encryptKey(key *Key, password string, scryptN, scryptP int) ([]byte, error) {
	salt := frand.Bytes(32)
	derivedKey, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}
	encryptKey := derivedKey[:16]

	iv := frand.Bytes(aes.BlockSize) // 16, aes-128-ctr
	cipherText, err := aesCTRXOR(encryptKey, key.Secret, iv)
	if err != nil {
		return nil, err
	}
	// the mac checks the password on decryption
	mac := crypto.Keccak256(derivedKey[16:32], cipherText)

	scryptParamsJSON := make(map[string]interface{}, 5)
	scryptParamsJSON["n"] = scryptN
	scryptParamsJSON["r"] = scryptR
	scryptParamsJSON["p"] = scryptP
	scryptParamsJSON["dklen"] = scryptDKLen
	scryptParamsJSON["salt"] = hex.EncodeToString(salt)

	cryptoStruct := CryptoJSON{
		Cipher:       "aes-128-ctr",
		CipherText:   hex.EncodeToString(cipherText),
		CipherParams: cipherparamsJSON{IV: hex.EncodeToString(iv)},
		KDF:          keyHeaderKDF,
		KDFParams:    scryptParamsJSON,
		MAC:          hex.EncodeToString(mac),
	}
	return json.Marshal(encryptedKeyJSONV3{
		Address: key.Address,
		Crypto:  cryptoStruct,
		Kind:    key.Kind,
		Id:      key.Id.String(),
		Version: latestVersion,
	})
}

// decryptKey decrypts a key from a json blob, returning the secret itself.
func decryptKey(keyjson []byte, password string) (*Key, error) {
	k := new(encryptedKeyJSONV3)
	if err := json.Unmarshal(keyjson, k); err != nil {
		return nil, err
	}
	if k.Version != latestVersion {
		return nil, xerrors.Errorf("version not supported: %v", k.Version)
	}
	if k.Crypto.Cipher != "aes-128-ctr" || k.Crypto.KDF != keyHeaderKDF {
		return nil, xerrors.Errorf("cipher %s with kdf %s not supported", k.Crypto.Cipher, k.Crypto.KDF)
	}

	id, err := uuid.Parse(k.Id)
	if err != nil {
		return nil, err
	}

	mac, err := hex.DecodeString(k.Crypto.MAC)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(k.Crypto.CipherParams.IV)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(k.Crypto.CipherText)
	if err != nil {
		return nil, err
	}

	derivedKey, err := getKDFKey(k.Crypto, password)
	if err != nil {
		return nil, err
	}

	calculatedMAC := crypto.Keccak256(derivedKey[16:32], cipherText)
	if !bytes.Equal(calculatedMAC, mac) {
		return nil, ErrDecrypt
	}

	secret, err := aesCTRXOR(derivedKey[:16], cipherText, iv)
	if err != nil {
		return nil, err
	}

	return &Key{
		Id:      id,
		Kind:    k.Kind,
		Address: k.Address,
		Secret:  secret,
	}, nil
}

func getKDFKey(cryptoJSON CryptoJSON, password string) ([]byte, error) {
	salt, err := hex.DecodeString(ensureString(cryptoJSON.KDFParams["salt"]))
	if err != nil {
		return nil, err
	}
	dkLen := ensureInt(cryptoJSON.KDFParams["dklen"])
	n := ensureInt(cryptoJSON.KDFParams["n"])
	r := ensureInt(cryptoJSON.KDFParams["r"])
	p := ensureInt(cryptoJSON.KDFParams["p"])
	if dkLen != scryptDKLen {
		return nil, xerrors.Errorf("derived key length %d", dkLen)
	}
	return scrypt.Key([]byte(password), salt, n, r, p, dkLen)
}

// json numbers decode as float64
func ensureInt(x interface{}) int {
	res, ok := x.(int)
	if !ok {
		f, _ := x.(float64)
		res = int(f)
	}
	return res
}

func ensureString(x interface{}) string {
	s, _ := x.(string)
	return s
}

func aesCTRXOR(key, inText, iv []byte) ([]byte, error) {
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(aesBlock, iv)
	outText := make([]byte, len(inText))
	stream.XORKeyStream(outText, inText)
	return outText, err
}

func writeTemporaryKeyFile(file string, content []byte) (string, error) {
	// Create the keystore directory with appropriate permissions
	// in case it is not present yet.
	const dirPerm = 0700
	if err := os.MkdirAll(filepath.Dir(file), dirPerm); err != nil {
		return "", err
	}
	// Atomic write: create a temporary hidden file first
	// then move it into place. TempFile assigns mode 0600.
	f, err := ioutil.TempFile(filepath.Dir(file), "."+filepath.Base(file)+".tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	f.Close()
	return f.Name(), nil
}

func writeKeyFile(file string, content []byte) error {
	name, err := writeTemporaryKeyFile(file, content)
	if err != nil {
		return err
	}
	return os.Rename(name, file)
}
