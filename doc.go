// Package authkit provides a client-side credential and session lifecycle manager
// for applications that authenticate against a remote identity provider and a
// companion backend API.
//
// The root package defines the shared vocabulary: the Session and User types, the
// collaborator interfaces (SecureTokenStore, IdentityProvider, BackendAPI) and the
// error taxonomy. Concrete behavior lives in sub-packages that are composed by the
// application:
//
//	st := store.New(store.NewMemory())
//	mgr := session.New(cognitoClient, st,
//	    session.WithBackend(api),
//	    session.WithLogger(logger),
//	)
//	user := mgr.Initialize(ctx)
//
//	flows := flow.New(api, cognitoClient)
//	res, err := flows.SignUp(ctx, authkit.SignUpRequest{Email: "a@example.com", Password: "..."})
package authkit
