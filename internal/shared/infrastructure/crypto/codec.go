package crypto

import "encoding/base64"

// FieldCodec applies encryption to declared sensitive entity fields at the
// storage boundary. Repositories that store data remotely run every
// sensitive field through EncodeField before writing and DecodeField after
// reading; callers above the repository only ever see plaintext.
//
// A nil *FieldCodec is a valid passthrough codec. The embedded backend
// stores fields in clear text and uses a nil codec.
type FieldCodec struct {
	enc Encrypter
}

// NewFieldCodec creates a codec backed by the given encrypter.
func NewFieldCodec(enc Encrypter) *FieldCodec {
	if enc == nil {
		return nil
	}
	return &FieldCodec{enc: enc}
}

// EncodeField encrypts a sensitive field value for storage.
// Empty values pass through unchanged so NULL-ish columns stay comparable.
func (c *FieldCodec) EncodeField(plaintext string) (string, error) {
	if c == nil || plaintext == "" {
		return plaintext, nil
	}
	ct, err := c.enc.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecodeField decrypts a stored sensitive field value.
func (c *FieldCodec) DecodeField(stored string) (string, error) {
	if c == nil || stored == "" {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	pt, err := c.enc.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
