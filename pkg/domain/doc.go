// domain package contains the Domain Models of knitfleet.
//
// knitfleet deploys components of applications (services, workers and jobs)
// onto one of the Kubernetes clusters registered in the environment of the application instance,
// and keeps the clusters consistent with the desired settings of the components.
//
// `domain/ENTITY.go` has entities and their rules.
// `domain/store` has the client interface of the relational store, and its implementations.
// `domain/cluster` has the client interface to remote clusters, and its implementation with client-go.
// `domain/manifest` renders desired state into Kubernetes manifests.
//
// # Entities
//
// - `Environment`: group of clusters. It also has environment-wide settings, which are injected into every component deployed in the environment.
//
// - `Cluster`: a remote Kubernetes cluster. Its free capacity and capabilities are not stored but read from the cluster.
//
// - `Application` and `Instance`: an instance is an application deployed in an environment with a container image.
//
// - `Component`: a deployable unit of an instance. Its `Kind` is one of service, worker and job.
//
// - `Placement`: which cluster a component is deployed on. A component has at most one placement, and it never moves.
package domain
