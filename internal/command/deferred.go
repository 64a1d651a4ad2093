package command

// deferredConn is the Conn handed to asynchronous handlers. Identity is
// captured when the request is submitted; every send is posted back to the
// main loop and applied to the real session there.
type deferredConn struct {
	base    Conn
	post    Poster
	network string
	nick    string
	trigger string
}

// Defer wraps base so that its sends are applied on the goroutine draining
// post.
func Defer(base Conn, post Poster) Conn {
	return &deferredConn{
		base:    base,
		post:    post,
		network: base.Network(),
		nick:    base.Nick(),
		trigger: base.Trigger(),
	}
}

func (d *deferredConn) Network() string { return d.network }
func (d *deferredConn) Nick() string    { return d.nick }
func (d *deferredConn) Trigger() string { return d.trigger }

func (d *deferredConn) Privmsg(target, text string) {
	d.post.Post(func() { d.base.Privmsg(target, text) })
}

func (d *deferredConn) Notice(target, text string) {
	d.post.Post(func() { d.base.Notice(target, text) })
}

func (d *deferredConn) Join(channel, key string) {
	d.post.Post(func() { d.base.Join(channel, key) })
}

func (d *deferredConn) Part(channel, reason string) {
	d.post.Post(func() { d.base.Part(channel, reason) })
}

func (d *deferredConn) Quit(reason string) {
	d.post.Post(func() { d.base.Quit(reason) })
}

func (d *deferredConn) Push(line string) {
	d.post.Post(func() { d.base.Push(line) })
}
