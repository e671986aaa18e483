package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

// Fixed padding string from the Standard security handler, 7.6.4.3.
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// deriveKey implements Algorithm 2: the RC4/AES-128 file key from a user
// password.
func deriveKey(pwd, oEntry []byte, p int32, fileID []byte, keyLenBytes, r int, encryptMeta bool) []byte {
	if keyLenBytes <= 0 {
		keyLenBytes = 5
	}
	if keyLenBytes > 16 {
		keyLenBytes = 16
	}
	data := make([]byte, 0, 32+len(oEntry)+8+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, oEntry...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyLenBytes])
			key = sum[:]
		}
	}
	return key[:keyLenBytes]
}

// ownerToUserKey implements Algorithm 7: decrypt the O entry with the owner
// password to recover the padded user password, then derive the file key from
// that.
func ownerToUserKey(ownerPwd, oEntry []byte, p int32, fileID []byte, keyLenBytes, r int, encryptMeta bool) ([]byte, bool) {
	if len(oEntry) < 32 {
		return nil, false
	}
	if keyLenBytes <= 0 {
		keyLenBytes = 5
	}
	if keyLenBytes > 16 {
		keyLenBytes = 16
	}
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyLenBytes])
			key = sum[:]
		}
	}
	rc4Key := key[:keyLenBytes]

	userPad := append([]byte(nil), oEntry[:32]...)
	if r == 2 {
		userPad = rc4Simple(rc4Key, userPad)
	} else {
		for i := 19; i >= 0; i-- {
			tmp := make([]byte, len(rc4Key))
			for j := range rc4Key {
				tmp[j] = rc4Key[j] ^ byte(i)
			}
			userPad = rc4Simple(tmp, userPad)
		}
	}
	return deriveKey(userPad, oEntry, p, fileID, keyLenBytes, r, encryptMeta), true
}

// checkUserPassword implements Algorithms 4 and 5: validate a candidate file
// key against the U entry.
func checkUserPassword(key, uEntry, fileID []byte, r int) bool {
	if len(uEntry) < 16 {
		return false
	}
	if r <= 2 {
		return comparePrefix(rc4Simple(key, passwordPadding)[:16], uEntry)
	}
	h := md5.Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	val := h[:]
	for i := 0; i < 20; i++ {
		tmp := make([]byte, len(key))
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(tmp, val)
	}
	return comparePrefix(val[:16], uEntry)
}

// objectKey implements Algorithm 1: derive the per-object key. Revisions 5 and
// up use the file key directly.
func objectKey(fileKey []byte, objNum, gen, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := append([]byte(nil), fileKey...)
	key = append(key,
		byte(objNum), byte(objNum>>8), byte(objNum>>16),
		byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	hash := md5.Sum(key)
	return hash[:n]
}

// rev6Hash implements the Algorithm 2.B iterated hash for revision 6.
func rev6Hash(pwd, salt, extra []byte) []byte {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	data := append(append(append([]byte(nil), pwd...), salt...), extra...)
	hash := sha256.Sum256(data)
	h := hash[:]
	for rounds := 1; ; rounds++ {
		block := make([]byte, 0, 64*(len(pwd)+len(h)+len(extra)))
		for i := 0; i < 64; i++ {
			block = append(block, pwd...)
			block = append(block, h...)
			block = append(block, extra...)
		}
		enc, err := aesCBCDecryptRaw(h[:16], h[16:32], block, true)
		if err != nil {
			return h
		}
		mod := 0
		for _, b := range enc[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			sum := sha256.Sum256(enc)
			h = sum[:]
		case 1:
			sum := sha512.Sum384(enc)
			h = sum[:]
		default:
			sum := sha512.Sum512(enc)
			h = sum[:]
		}
		if rounds >= 64 && int(enc[len(enc)-1]) <= rounds-32 {
			break
		}
	}
	return h[:32]
}

func deriveAES256User(pwd, uEntry, ue []byte) ([]byte, bool, error) {
	if len(uEntry) < 48 || len(ue) < 32 {
		return nil, false, errors.New("user entry too short")
	}
	validationSalt := uEntry[32:40]
	keySalt := uEntry[40:48]
	if !comparePrefix(rev6Hash(pwd, validationSalt, nil), uEntry[:32]) {
		return nil, false, nil
	}
	interKey := rev6Hash(pwd, keySalt, nil)
	fileKey, err := aesCBCDecryptZeroIV(interKey, ue[:32])
	if err != nil {
		return nil, false, err
	}
	return fileKey, true, nil
}

func deriveAES256Owner(pwd, oEntry, oe, uEntry []byte) ([]byte, bool, error) {
	if len(oEntry) < 48 || len(oe) < 32 || len(uEntry) < 48 {
		return nil, false, errors.New("owner entry too short")
	}
	validationSalt := oEntry[32:40]
	keySalt := oEntry[40:48]
	if !comparePrefix(rev6Hash(pwd, validationSalt, uEntry[:48]), oEntry[:32]) {
		return nil, false, nil
	}
	interKey := rev6Hash(pwd, keySalt, uEntry[:48])
	fileKey, err := aesCBCDecryptZeroIV(interKey, oe[:32])
	if err != nil {
		return nil, false, err
	}
	return fileKey, true, nil
}

func decryptPermsAES256(key, perms []byte) (int32, error) {
	if len(perms) != 16 {
		return 0, errors.New("perms entry must be 16 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}
	out := make([]byte, 16)
	block.Decrypt(out, perms)
	if string(out[9:12]) != "adb" {
		return 0, errors.New("invalid perms signature")
	}
	return int32(binary.LittleEndian.Uint32(out[0:4])), nil
}

func rc4Simple(key, data []byte) []byte {
	out := make([]byte, len(data))
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(out, data)
	return out
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesDecrypt decrypts CBC data whose first block is the IV, stripping the
// trailing padding.
func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	out, err := aesCBCDecryptRaw(key, data[:aes.BlockSize], data[aes.BlockSize:], false)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

func aesCBCDecryptZeroIV(key, data []byte) ([]byte, error) {
	return aesCBCDecryptRaw(key, make([]byte, aes.BlockSize), data, false)
}

func aesCBCDecryptRaw(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not a multiple of the block size")
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

func comparePrefix(a, b []byte) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
