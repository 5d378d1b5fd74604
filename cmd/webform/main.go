// Command webform fills in the Selenium web form in a real browser and
// prints the confirmation message.
//
// Usage:
//
//	webform run
//	webform run --browser firefox --headless=false
//	webform run --backend chromedp --expect Received!
//	webform setup chrome firefox
//	webform history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
