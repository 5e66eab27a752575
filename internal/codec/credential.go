package codec

// Credential is a single stored login.
type Credential struct {
	Password    string  `json:"password"`
	Username    string  `json:"username"`
	AppID       *string `json:"app_id,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	OTP         *string `json:"otp,omitempty"`
}

// Opt returns a pointer to s, for filling optional credential fields.
func Opt(s string) *string {
	return &s
}

// Equal reports whether c and o hold the same field values.
func (c *Credential) Equal(o *Credential) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Password == o.Password &&
		c.Username == o.Username &&
		optEqual(c.AppID, o.AppID) &&
		optEqual(c.Description, o.Description) &&
		optEqual(c.URL, o.URL) &&
		optEqual(c.OTP, o.OTP)
}

func optEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// EncodeCredential encodes c in the fixed field order.
func EncodeCredential(c *Credential) []byte {
	w := &writer{}
	w.string(c.Password)
	w.optionalString(c.AppID)
	w.string(c.Username)
	w.optionalString(c.Description)
	w.optionalString(c.URL)
	w.optionalString(c.OTP)
	return w.buf
}

// DecodeCredential decodes a credential. Trailing bytes are ignored.
func DecodeCredential(data []byte) (*Credential, error) {
	r := newReader(data, Lenient)
	var (
		c   Credential
		err error
	)
	if c.Password, err = r.string(); err != nil {
		return nil, err
	}
	if c.AppID, err = r.optionalString(); err != nil {
		return nil, err
	}
	if c.Username, err = r.string(); err != nil {
		return nil, err
	}
	if c.Description, err = r.optionalString(); err != nil {
		return nil, err
	}
	if c.URL, err = r.optionalString(); err != nil {
		return nil, err
	}
	if c.OTP, err = r.optionalString(); err != nil {
		return nil, err
	}
	return &c, nil
}
