package workflow

// PublishSpinnakerWithOperations runs publish_spinnaker against the given command bindings.
var PublishSpinnakerWithOperations = publishSpinnaker

// RunDefinitionWithOperations runs a workflow definition against the given command bindings.
var RunDefinitionWithOperations = runDefinition
