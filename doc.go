// Package skap is the client core of a password manager that keeps every
// long-term secret on the device.
//
// Credentials are encrypted twice before they leave the client: once with a
// key derived from the account's ML-KEM-1024 secret key and once with a
// session secret agreed with the service at login. Logins are
// challenge-response with ML-DSA-87 signatures. Credentials shared with
// another user are encrypted to the recipient's ML-KEM-1024 public key.
// A local cache encrypted with AES-256-GCM keeps session tokens and other
// small values for at most one hour.
//
// Basic usage:
//
//	client, err := skap.New(skap.WithBaseURL("https://vault.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	acct, err := client.LoadAccountFile("account.skap")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if res := client.Authenticate(ctx, acct); !res.OK() {
//	    log.Fatal(res.Err)
//	}
//
//	list, err := client.FetchAllCredentials(ctx, acct)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, rec := range list.Owned {
//	    fmt.Println(rec.Credential.Username)
//	}
package skap
