// Package identity derives the endpoint name shared by all instances of an application
// and the ids of secondary instances.
//
// Endpoint names hash the application name, organization, domain and app data together
// with (depending on Mode) the version, the executable path and the user name. The base64
// result contains no '/', it can be used as a socket file name directly.
package identity
