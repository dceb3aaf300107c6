package toast

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/unipress/newsdesk/pkg/notifications"
)

// Fragment renders t as a toast element. id makes the element addressable
// for dismissal.
func Fragment(id string, t notifications.Toast) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="`+templ.EscapeString(id)+
			`" class="toast" role="status" data-duration="`+strconv.FormatInt(t.Duration.Milliseconds(), 10)+
			`">`+templ.EscapeString(t.Message)+`</div>`)
		return err
	})
}
