// Package report is the widget's error-tracking hook. Rendering failures
// arrive either from the host page (POST /widget/errors) or from a session's
// recovery boundary; both end up as one sanitised, ID'd, logged Report.
package report
