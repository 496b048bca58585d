// Package config loads the RAGMesh YAML configuration and builds the
// immutable agent profile table from it.
//
// The agents section maps an agent id to {class, args}; class is one of
// Router, RetrievalSpecialist, Summarizer, ContextManager or Fallback.
// Declaration order is preserved because it breaks routing ties:
//
//	agents:
//	  tutorial_agent:
//	    class: RetrievalSpecialist
//	    args:
//	      description: Tutorial guides for configuring models and agents.
//	      sys_prompt: You answer from the tutorial.
//	      model_config_name: gpt-4o
//	      knowledge_id_list: [tutorial]
//	      similarity_top_k: 8
//	      default_web_path_key: tutorial
//
// Malformed agents are rejected by Config.Build at load time, never at
// query time.
package config
