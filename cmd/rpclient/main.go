// rpclient is a minimal relying party for exercising the identity provider
// locally: it starts the authorization-code flow against the configured
// issuer and prints the claims of the ID token it gets back.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

func main() {
	issuer := getenv("RP_ISSUER", "http://localhost:8080")
	clientID := getenv("RP_CLIENT_ID", "rpclient")
	clientSecret := os.Getenv("RP_CLIENT_SECRET")
	addr := getenv("RP_ADDR", ":9009")
	redirectURL := getenv("RP_REDIRECT_URL", "http://localhost:9009/callback")

	ctx := context.Background()
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		log.Fatalf("discover issuer %s: %v", issuer, err)
	}
	oauthCfg := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	var mu sync.Mutex
	pending := map[string]string{} // state -> nonce

	http.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		state, nonce := randomToken(), randomToken()
		mu.Lock()
		pending[state] = nonce
		mu.Unlock()
		http.Redirect(w, r, oauthCfg.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
	})

	http.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		mu.Lock()
		nonce, ok := pending[state]
		delete(pending, state)
		mu.Unlock()
		if !ok {
			http.Error(w, "unknown state", http.StatusBadRequest)
			return
		}
		tok, err := oauthCfg.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			http.Error(w, "exchange: "+err.Error(), http.StatusBadGateway)
			return
		}
		rawIDToken, ok := tok.Extra("id_token").(string)
		if !ok {
			http.Error(w, "no id_token in token response", http.StatusBadGateway)
			return
		}
		idToken, err := verifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			http.Error(w, "verify: "+err.Error(), http.StatusBadGateway)
			return
		}
		if idToken.Nonce != nonce {
			http.Error(w, "nonce mismatch", http.StatusBadRequest)
			return
		}
		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			http.Error(w, "claims: "+err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]interface{}{
			"subject": idToken.Subject,
			"claims":  claims,
		})
	})

	log.Printf("relying party listening on %s; open http://localhost%s/login", addr, addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func randomToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("rand: %v", err))
	}
	return hex.EncodeToString(b)
}
