/*
Package authsdk provides the wire types and a client SDK for the tabauth
session service.

# Wire types

Every request body is a plain struct with a Validate method that returns a
map of field name to message (nil when valid). The server runs Validate at
the boundary before anything reaches the session manager, and clients may
run it before sending:

	req := authsdk.RegisterRequest{Username: "alice", Password: "S3cret!"}
	if errs := req.Validate(); errs != nil {
		for field, msg := range errs {
			fmt.Printf("%s: %s\n", field, msg)
		}
		return
	}

Errors travel as APIError ({"error", "error_description"}). The same value
is written by the server and decoded by the client, so errors.Is works on
both sides:

	_, err := client.Login(ctx, req)
	if errors.Is(err, authsdk.ErrMFARequired) {
		// ask for the one-time password and retry with req.OTP set
	}

Authentication failures are deliberately generic: ErrInvalidCredentials is
returned for an unknown user and for a wrong password alike.

# SDKClient vs Session

SDKClient covers the unauthenticated endpoints (register, login, refresh,
authorize, health). Session wraps a token pair and refreshes the access
token shortly before it expires:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.AuthenticateWithPassword(ctx, "alice", "S3cret!", "")
	if err != nil {
		log.Fatal(err)
	}

	me, err := session.Me(ctx)
	fmt.Println("logged in as", me.Username, me.Capabilities)

	_ = session.Logout(ctx)

# Decisions for other services

Services that receive bearer tokens can ask the auth service for a decision
instead of verifying tokens themselves:

	d, err := client.Authorize(ctx, authsdk.AuthorizeRequest{
		Token:      bearer,
		Capability: "reports:read",
	})
	switch {
	case errors.Is(err, authsdk.ErrInvalidToken):
		// 401
	case err != nil:
		// service unavailable
	case !d.Allowed:
		// 403
	}

Sessions are safe for concurrent use.
*/
package authsdk
