// Package job defines the job envelope stored in Redis and the handler
// registry workers dispatch to.
//
// A [Job] is encoded as JSON:
//
//	{"jid":"job_01h…","class":"send_email","queue":"default","args":{…},"enqueued_at":"…"}
//
// The encoded string is what moves between public queues, private lists
// and the pending set. Define handlers with a typed [Definition]:
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(in.To, in.Subject)
//	    },
//	    job.WithQueue("mail"),
//	)
//
//	job.RegisterDefinition(registry, SendEmail)
package job
