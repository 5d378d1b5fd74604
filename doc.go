/*
Package webform drives a browser through a short form-filling scenario: open
the Selenium web form, type into its text box, submit it and read back the
confirmation message.

The scenario runs against a Session. Implementations live in
internal/backend: a W3C WebDriver client (package webdriver) talking to a
local ChromeDriver or GeckoDriver or to a remote Selenium Grid, and two
DevTools protocol backends built on chromedp and go-rod.

	s, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := webform.DefaultScenario().Run(ctx, s)
	if err != nil {
		return err
	}
	fmt.Println(res.Message) // Received!

Run always quits the session, including when a step fails.
*/
package webform
