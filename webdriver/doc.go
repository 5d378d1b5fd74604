/*
Package webdriver provides a W3C WebDriver client.

The client speaks to a WebDriver remote end over HTTP: a locally started
ChromeDriver or GeckoDriver (see NewChromeDriverService and
NewGeckoDriverService), or a remote Selenium Grid. Replies from older
JSON wire protocol servers are understood as well.

Example usage:

	service, err := webdriver.NewChromeDriverService("/path/to/chromedriver", 9515)
	if err != nil {
		return err
	}
	defer service.Stop()

	caps := webdriver.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{Args: []string{"--headless=new"}})
	wd, err := webdriver.NewRemote(caps, service.Addr())
	if err != nil {
		return err
	}
	defer wd.Quit()

	if err := wd.Get("https://www.selenium.dev/selenium/web/web-form.html"); err != nil {
		return err
	}
	wd.SetImplicitWaitTimeout(500 * time.Millisecond)

	box, err := wd.FindElement(webdriver.ByName, "my-text")
	if err != nil {
		return err
	}
	box.SendKeys("Selenium")

The id, name and class name strategies are rewritten to CSS selectors when
the remote end speaks W3C, which has no such strategies.
*/
package webdriver
