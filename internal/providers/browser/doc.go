/*
Package browser logs in through a real Chrome driven over the DevTools
protocol with go-rod.

The site's login form sets its session cookies from script, so a plain HTTP
form post is not always enough. Session launches Chrome (or attaches to one
through ControlURL), opens an incognito page, types the credentials into the
form and waits for the post-submit navigation. Landing back on the login path
means the credentials were refused.

After login the browser stays open so ReadTokens can render the tokens page
and hand its HTML to the scraper. Close must be called; it also kills a
launched Chrome and removes its temporary profile.

# Usage Example

	s, err := browser.New(browser.Config{
		Headless:  true,
		LoginURL:  "https://challenge.example.com/login",
		TokensURL: "https://challenge.example.com/settings/tokens",
	}, logger)
	defer s.Close()

	cookies, err := s.Login(ctx, credentials.Account{Username: u, Password: p})
	tokens, err := s.ReadTokens(ctx)
*/
package browser
