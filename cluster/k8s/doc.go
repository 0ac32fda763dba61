// Package k8s provides a cluster.LeaseStore backed by the coordination/v1
// Lease API, for deployments that would rather elect a leader through the
// Kubernetes control plane than through Redis. Concurrent writers are
// serialised by the API server's resourceVersion check.
//
//	client := kubernetes.NewForConfigOrDie(cfg)
//	elector := cluster.NewElector(k8s.New(client, "jobs"), identity)
package k8s
