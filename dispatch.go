package skap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Request is one operation accepted by Dispatch. The set of requests is
// closed; each concrete type below names one operation.
type Request interface {
	request()
}

type (
	// LoadAccountRequest decodes an account, from Data or from the file at
	// Path, and remembers it as the current account.
	LoadAccountRequest struct {
		Data []byte
		Path string
	}

	// AuthenticateRequest authenticates the current account.
	AuthenticateRequest struct{}

	// FetchAllRequest lists the credentials of the current account.
	FetchAllRequest struct{}

	// StoreCredentialRequest stores a new credential.
	StoreCredentialRequest struct {
		Credential Credential
	}

	// UpdateCredentialRequest replaces the credential ID.
	UpdateCredentialRequest struct {
		ID         string
		Credential Credential
	}

	// DeleteCredentialRequest removes the credential ID.
	DeleteCredentialRequest struct {
		ID string
	}

	// ShareCredentialRequest shares a credential with Recipient.
	ShareCredentialRequest struct {
		ID         string
		Recipient  string
		Credential Credential
	}

	// AcceptSharedRequest accepts the shared credential ID.
	AcceptSharedRequest struct {
		ID string
	}

	// RejectSharedRequest rejects the shared credential ID.
	RejectSharedRequest struct {
		ID string
	}

	// CacheSetRequest stores Value in the local cache.
	CacheSetRequest struct {
		Name  string
		Value any
	}

	// CacheGetRequest reads a cached value. Data is the raw JSON value.
	CacheGetRequest struct {
		Name string
	}

	// CacheRemoveRequest removes a cached value.
	CacheRemoveRequest struct {
		Name string
	}

	// LockRequest wipes the cache key.
	LockRequest struct{}

	// IdleRequest re-arms the cache wipe timer.
	IdleRequest struct{}
)

func (LoadAccountRequest) request()      {}
func (AuthenticateRequest) request()     {}
func (FetchAllRequest) request()         {}
func (StoreCredentialRequest) request()  {}
func (UpdateCredentialRequest) request() {}
func (DeleteCredentialRequest) request() {}
func (ShareCredentialRequest) request()  {}
func (AcceptSharedRequest) request()     {}
func (RejectSharedRequest) request()     {}
func (CacheSetRequest) request()         {}
func (CacheGetRequest) request()         {}
func (CacheRemoveRequest) request()      {}
func (LockRequest) request()             {}
func (IdleRequest) request()             {}

// Response is the outcome of Dispatch. Message carries the error text when
// Success is false.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) Response {
	return Response{Success: true, Data: data}
}

func fail(err error) Response {
	return Response{Success: false, Message: err.Error()}
}

// Dispatch runs req and reports its outcome. It never panics and never
// returns a Go error; failures are reported in the Response.
func (c *Client) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic recovered", slog.Any("error", r), slog.String("request", fmt.Sprintf("%T", req)))
			resp = Response{Success: false, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	switch r := req.(type) {
	case LoadAccountRequest:
		return c.dispatchLoad(r)
	case CacheSetRequest:
		return result(nil, c.CacheSet(r.Name, r.Value))
	case CacheGetRequest:
		var raw json.RawMessage
		found, err := c.CacheGet(r.Name, &raw)
		if err != nil {
			return fail(err)
		}
		if !found {
			return ok(nil)
		}
		return ok(raw)
	case CacheRemoveRequest:
		return result(nil, c.CacheRemove(r.Name))
	case LockRequest:
		return result(nil, c.Lock())
	case IdleRequest:
		return result(nil, c.Idle())
	case nil:
		return fail(fmt.Errorf("nil request"))
	}

	acct, found, err := c.RecallAccount()
	if err != nil {
		return fail(err)
	}
	if !found {
		return fail(ErrNoAccount)
	}

	switch r := req.(type) {
	case AuthenticateRequest:
		res := c.Authenticate(ctx, acct)
		if !res.OK() {
			return fail(res.Err)
		}
		return ok(res.State.String())
	case FetchAllRequest:
		list, err := c.FetchAllCredentials(ctx, acct)
		if err != nil && list == nil {
			return fail(err)
		}
		resp := ok(list)
		if err != nil {
			resp.Message = err.Error()
		}
		return resp
	case StoreCredentialRequest:
		return result(nil, c.StoreCredential(ctx, acct, &r.Credential))
	case UpdateCredentialRequest:
		return result(nil, c.UpdateCredential(ctx, acct, r.ID, &r.Credential))
	case DeleteCredentialRequest:
		return result(nil, c.DeleteCredential(ctx, acct, r.ID))
	case ShareCredentialRequest:
		return result(nil, c.ShareCredential(ctx, acct, r.ID, r.Recipient, &r.Credential))
	case AcceptSharedRequest:
		return result(nil, c.AcceptShared(ctx, acct, r.ID))
	case RejectSharedRequest:
		return result(nil, c.RejectShared(ctx, acct, r.ID))
	}
	return fail(fmt.Errorf("unsupported request %T", req))
}

func result(data any, err error) Response {
	if err != nil {
		return fail(err)
	}
	return ok(data)
}

func (c *Client) dispatchLoad(r LoadAccountRequest) Response {
	var (
		acct *Account
		err  error
	)
	if r.Path != "" {
		acct, err = c.LoadAccountFile(r.Path)
	} else {
		acct, err = c.LoadAccount(r.Data)
	}
	if err != nil {
		return fail(err)
	}
	if err := c.RememberAccount(acct); err != nil {
		return fail(err)
	}
	return ok(acct.Email())
}
