package client

const DefaultSched_HTTP string = "localhost:9090"
const DefaultOps_HTTP string = "localhost:9091"
