// Package client is the Go SDK for the exposechain HTTP API.
//
// # Scanning a target
//
//	c, err := client.New("http://localhost:8000",
//	    client.WithBearerToken(os.Getenv("EXPOSECHAIN_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := c.Scan(ctx, "example.com", "full")
//	fmt.Println(resp.ThreatReport.ThreatLevel)
//
// # Discovering exposures
//
// Discover runs every configured discovery source on the server (or only the
// named ones) and returns the stored scan with its risk summary:
//
//	rec, err := c.Discover(ctx)
//	exposures, err := c.Exposures(ctx, rec.ID)
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Use IsNotFound to test for a
// missing scan.
package client
