// Package security enforces resource limits and decrypts documents protected
// by the Standard security handler.
package security

import (
	"errors"
	"fmt"

	"pdftext/ir/raw"
)

// Permissions reflects the P flags of an encrypted document.
type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations bool
	FillForms, ExtractAccessible          bool
	Assemble, PrintHighQuality            bool
}

// DataClass identifies the kind of payload being decrypted. Metadata streams
// may be exempted from encryption by the document.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

// Handler decrypts object payloads after password authentication.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
}

// NewHandler builds a handler from the trailer's /Encrypt dictionary. A nil
// encrypt dictionary yields a pass-through handler.
func NewHandler(encryptDict, trailer raw.Dictionary) (Handler, error) {
	if encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	if f := raw.NameValue(raw.DictGet(encryptDict, "Filter")); f != "" && f != "Standard" {
		return nil, fmt.Errorf("unsupported security handler %q", f)
	}
	v := int(raw.IntFromDict(encryptDict, "V", 1))
	if v == 0 {
		v = 1
	}
	r := int(raw.IntFromDict(encryptDict, "R", 2))
	if v > 5 || r > 6 {
		return nil, errors.New("unsupported encryption revision")
	}
	keyLen := 40
	if v >= 5 {
		keyLen = 256
	}
	if n := raw.IntFromDict(encryptDict, "Length", 0); n > 0 {
		keyLen = int(n)
	}
	if v >= 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 {
		return nil, errors.New("encryption key length must be a multiple of 8")
	}

	h := &standardHandler{
		v:           v,
		r:           r,
		lengthBits:  keyLen,
		oEntry:      stringBytes(encryptDict, "O"),
		uEntry:      stringBytes(encryptDict, "U"),
		oe:          stringBytes(encryptDict, "OE"),
		ue:          stringBytes(encryptDict, "UE"),
		p:           int32(raw.IntFromDict(encryptDict, "P", 0)),
		perms:       stringBytes(encryptDict, "Perms"),
		fileID:      firstFileID(trailer),
		encryptMeta: true,
	}
	if b, ok := raw.DictGet(encryptDict, "EncryptMetadata").(raw.BoolObj); ok {
		h.encryptMeta = b.V
	}

	baseAlgo := algoRC4
	if v >= 4 {
		baseAlgo = algoAES
	}
	filters, err := parseCryptFilters(encryptDict, baseAlgo)
	if err != nil {
		return nil, err
	}
	if h.streamAlgo, err = resolveCryptFilter(encryptDict, "StmF", baseAlgo, filters); err != nil {
		return nil, err
	}
	if h.stringAlgo, err = resolveCryptFilter(encryptDict, "StrF", baseAlgo, filters); err != nil {
		return nil, err
	}
	return h, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

type standardHandler struct {
	key        []byte
	v, r       int
	lengthBits int
	oEntry     []byte
	uEntry     []byte
	oe         []byte
	ue         []byte
	p          int32
	perms      []byte
	fileID     []byte

	encryptMeta bool
	authed      bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

func (h *standardHandler) Authenticate(password string) error {
	if h.r >= 5 {
		if err := h.authenticateAES256([]byte(password)); err != nil {
			return err
		}
		h.authed = true
		return nil
	}
	key := deriveKey([]byte(password), h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r, h.encryptMeta)
	if !checkUserPassword(key, h.uEntry, h.fileID, h.r) {
		// Try the password as the owner password: recover the user
		// password key via the O entry round trip.
		userKey, ok := ownerToUserKey([]byte(password), h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r, h.encryptMeta)
		if !ok || !checkUserPassword(userKey, h.uEntry, h.fileID, h.r) {
			return errors.New("invalid password")
		}
		key = userKey
	}
	h.key = key
	h.authed = true
	return nil
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	if class == DataClassMetadataStream && !h.encryptMeta {
		return data, nil
	}
	algo := h.streamAlgo
	if class == DataClassString {
		algo = h.stringAlgo
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Crypt(key, data)
}

func (h *standardHandler) Permissions() Permissions {
	return Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

func (h *standardHandler) authenticateAES256(pwd []byte) error {
	if len(h.uEntry) >= 48 && len(h.ue) >= 32 {
		if key, ok, err := deriveAES256User(pwd, h.uEntry, h.ue); err == nil && ok {
			h.key = key
			h.loadEncryptedPerms()
			return nil
		}
	}
	if len(h.oEntry) >= 48 && len(h.oe) >= 32 && len(h.uEntry) >= 48 {
		if key, ok, err := deriveAES256Owner(pwd, h.oEntry, h.oe, h.uEntry); err == nil && ok {
			h.key = key
			h.loadEncryptedPerms()
			return nil
		}
	}
	return errors.New("invalid password")
}

func (h *standardHandler) loadEncryptedPerms() {
	if h.p != 0 || len(h.perms) != 16 {
		return
	}
	if p, err := decryptPermsAES256(h.key, h.perms); err == nil {
		h.p = p
	}
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool              { return false }
func (noEncryptionHandler) Authenticate(string) error      { return nil }
func (noEncryptionHandler) EncryptMetadata() bool          { return false }
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() Permissions {
	return Permissions{Print: true, Modify: true, Copy: true, ExtractAccessible: true}
}

// NoopHandler returns a reusable pass-through handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

func stringBytes(d raw.Dictionary, key string) []byte {
	if s, ok := raw.DictGet(d, key).(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

func firstFileID(trailer raw.Dictionary) []byte {
	arr, ok := raw.DictGet(trailer, "ID").(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

func parseCryptFilters(dict raw.Dictionary, base cryptAlgo) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cf, ok := raw.DictGet(dict, "CF").(*raw.DictObj)
	if !ok {
		return out, nil
	}
	for name, obj := range cf.KV {
		entry, ok := obj.(*raw.DictObj)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		algo := base
		switch raw.NameValue(raw.DictGet(entry, "CFM")) {
		case "":
		case "V2":
			algo = algoRC4
		case "AESV2", "AESV3":
			algo = algoAES
		case "None":
			algo = algoNone
		default:
			return nil, fmt.Errorf("unsupported crypt filter method in %s", name)
		}
		out[name] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict raw.Dictionary, key string, base cryptAlgo, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name := raw.NameValue(raw.DictGet(dict, key))
	switch name {
	case "", "Standard", "StdCF":
		if algo, ok := filters[name]; ok && name != "" {
			return algo, nil
		}
		if algo, ok := filters["StdCF"]; ok {
			return algo, nil
		}
		return base, nil
	case "Identity":
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoNone, fmt.Errorf("crypt filter %s not defined", name)
}
