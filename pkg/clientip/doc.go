// Package clientip resolves the address of the client behind trusted
// proxies so that stream connections can be attributed in logs.
//
// Only list headers that the fronting proxy overwrites; anything else can
// be forged by the client.
package clientip
